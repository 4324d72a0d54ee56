//go:build !sqlite3_cgo

package db

import (
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// pure-Go (wasm) sqlite, the default build
const (
	driverID   = "ncruces/go-sqlite3"
	driverName = "sqlite3"
)
