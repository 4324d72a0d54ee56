package foldersync

import (
	"errors"
	"fmt"

	"github.com/tradedata/s3sync/internal/synccache"
)

var (
	// ErrListing aborts a sync before any action runs
	ErrListing = errors.New("listing failed")
	// ErrScan marks a single local path that could not be read while scanning or hashing
	ErrScan = errors.New("scan failed")
	// ErrTransfer marks a single action that failed, the path stays eligible for retry
	ErrTransfer = errors.New("transfer failed")
	// ErrCacheCorruption aborts a sync when the cache cannot be trusted
	ErrCacheCorruption = synccache.ErrCorrupt
)

// PathError ties a per-path failure to its kind (ErrScan or ErrTransfer).
type PathError struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func scanError(op, path string, err error) error {
	return &PathError{Kind: ErrScan, Op: op, Path: path, Err: err}
}

func transferError(op ActionType, path string, err error) error {
	return &PathError{Kind: ErrTransfer, Op: string(op), Path: path, Err: err}
}
