//go:build cgo && sqlite3_cgo

package db

import (
	_ "github.com/mattn/go-sqlite3"
)

// build with -tags sqlite3_cgo to link the C library instead
const (
	driverID   = "mattn/go-sqlite3"
	driverName = "sqlite3"
)
