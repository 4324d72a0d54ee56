package foldersync

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/utils"
)

// LookupRemote finds the object that holds path under prefix, trying the compressed key first.
// Returns an error wrapping blob.ErrNotFound when neither form exists.
func LookupRemote(ctx context.Context, backend blob.Backend, prefix, path string) (*Fingerprint, error) {
	path = utils.ToSlashRel(path)
	if !blob.ValidateKey(path) {
		return nil, fmt.Errorf("%w: %q", blob.ErrInvalidKey, path)
	}

	for _, compressed := range []bool{true, false} {
		key := blob.JoinKey(prefix, EncodeKey(path, compressed))
		info, err := backend.HeadObject(ctx, key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Fingerprint{
			Path:       path,
			Size:       info.Size,
			ModTime:    info.LastModified,
			Key:        info.Key,
			ETag:       info.ETag,
			Compressed: compressed,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, path)
}
