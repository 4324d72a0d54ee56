package foldersync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/utils"
)

// Snapshot maps relative paths to fingerprints
type Snapshot map[string]*Fingerprint

// ScanLocal walks root and fingerprints every regular file that is not excluded. Files that
// cannot be stat'ed are left out and returned as ErrScan errors. Only a failure to read root
// itself is fatal. Nothing is hashed here.
func ScanLocal(ctx context.Context, root string, m *Matcher) (Snapshot, []error, error) {
	snap := make(Snapshot)
	var scanErrs []error

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return err
			}
			rel := path
			if r, relErr := filepath.Rel(root, path); relErr == nil {
				rel = utils.ToSlashRel(r)
			}
			slog.Warn("scan", "path", rel, "error", err)
			scanErrs = append(scanErrs, scanError("walk", rel, err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel := utils.ToSlashRel(relPath)
		if rel == "" {
			return nil
		}

		if m.Excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			// symlinks, sockets and devices are not synced
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("scan", "path", rel, "error", err)
			scanErrs = append(scanErrs, scanError("stat", rel, err))
			return nil
		}

		snap[rel] = &Fingerprint{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})
	if err != nil {
		return nil, scanErrs, fmt.Errorf("scan %s: %w", root, err)
	}

	return snap, scanErrs, nil
}

// ListRemote lists every object under prefix and keys it by its decoded relative path.
// Keys only decode as compressed when useCompression is set. When a plain and a compressed key
// decode to the same path the compressed one wins and the plain one is kept in Stale.
func ListRemote(ctx context.Context, backend blob.Backend, prefix string, m *Matcher, useCompression bool) (Snapshot, error) {
	objects, err := backend.ListObjects(ctx, blob.NormalizePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %w", ErrListing, prefix, err)
	}

	snap := make(Snapshot, len(objects))
	for _, obj := range objects {
		rel, ok := blob.RelKey(prefix, obj.Key)
		if !ok || rel == "" || strings.HasSuffix(rel, "/") {
			// directory markers
			continue
		}

		path, compressed := DecodeKey(rel, useCompression)
		if m.Excluded(path) {
			continue
		}

		fp := &Fingerprint{
			Path:       path,
			Size:       obj.Size,
			ModTime:    obj.LastModified,
			Key:        obj.Key,
			ETag:       obj.ETag,
			Compressed: compressed,
		}

		existing, dup := snap[path]
		switch {
		case !dup:
			snap[path] = fp
		case existing.Compressed:
			existing.Stale = append(existing.Stale, fp.Key)
		default:
			fp.Stale = append(existing.Stale, existing.Key)
			snap[path] = fp
		}
	}

	return snap, nil
}
