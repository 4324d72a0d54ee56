package foldersync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/queue"
	"github.com/tradedata/s3sync/internal/synccache"
	"github.com/tradedata/s3sync/internal/utils"
)

const contentTypeZstd = "application/zstd"

// Executor carries out a plan with a fixed number of workers. Each action mutates the stats
// exactly once and touches the cache only when it succeeded.
type Executor struct {
	backend   blob.Backend
	cache     *synccache.Store
	hasher    *Hasher
	opts      Options
	localRoot string
	prefix    string
	stats     *Stats
}

func NewExecutor(backend blob.Backend, cache *synccache.Store, hasher *Hasher, opts Options, localRoot, prefix string, stats *Stats) *Executor {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Executor{
		backend:   backend,
		cache:     cache,
		hasher:    hasher,
		opts:      opts,
		localRoot: localRoot,
		prefix:    prefix,
		stats:     stats,
	}
}

func (e *Executor) Stats() *Stats {
	return e.stats
}

// Run executes every action and returns once all workers are idle. When ctx is cancelled the
// workers stop taking new actions and ctx.Err() is returned. Actions already started run to
// completion, cache update included. Actions never started get an Err wrapping ctx.Err().
func (e *Executor) Run(ctx context.Context, actions []*Action) error {
	pq := queue.NewPriorityQueue[*Action]()
	for _, a := range actions {
		pq.Enqueue(a, actionPriority(a))
	}

	actionCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for range max(e.opts.MaxParallel, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				a, ok := pq.Dequeue()
				if !ok {
					return
				}
				e.execute(actionCtx, a)
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		pending := pq.DequeueAll()
		for _, a := range pending {
			if a.Err == nil {
				a.Err = transferError(a.Type, a.Path, err)
			}
			slog.Debug("sync", "op", a.Type, "status", "NotStarted", "path", a.Path)
		}
		slog.Warn("sync cancelled", "pending", len(pending), "error", err)
		return err
	}
	return nil
}

// actionPriority schedules bookkeeping first, then deletes, then transfers smallest first
func actionPriority(a *Action) int64 {
	switch a.Type {
	case ActionSkip, ActionForget, ActionConflict:
		return 0
	case ActionDeleteLocal, ActionDeleteRemote:
		return 1
	case ActionUpload:
		if a.Local != nil {
			return 2 + a.Local.Size
		}
	case ActionDownload:
		if a.Remote != nil {
			return 2 + a.Remote.Size
		}
	}
	return 2
}

func (e *Executor) execute(ctx context.Context, a *Action) {
	if a.Err != nil {
		slog.Error("sync", "op", a.Type, "status", "Error", "path", a.Path, "error", a.Err)
		e.stats.RecordError()
		return
	}

	if e.opts.DryRun {
		e.simulate(a)
		return
	}

	var (
		n   int64
		err error
	)
	switch a.Type {
	case ActionUpload:
		n, err = e.upload(ctx, a)
	case ActionDownload:
		n, err = e.download(ctx, a)
	case ActionDeleteRemote:
		err = e.deleteRemote(ctx, a)
	case ActionDeleteLocal:
		err = e.deleteLocal(ctx, a)
	case ActionSkip:
		if a.Record != nil {
			err = e.cache.Put(ctx, a.Record)
		}
	case ActionForget:
		err = e.cache.Remove(ctx, a.Path)
	case ActionConflict:
		slog.Warn("sync", "op", a.Type, "status", "Conflict", "path", a.Path, "reason", a.Reason)
		e.stats.RecordConflict()
		return
	default:
		err = fmt.Errorf("unknown action %q", a.Type)
	}

	if err != nil {
		a.Err = transferError(a.Type, a.Path, err)
		slog.Error("sync", "op", a.Type, "status", "Error", "path", a.Path, "error", err)
		e.stats.RecordError()
		return
	}

	switch a.Type {
	case ActionUpload:
		e.stats.RecordUpload(n)
		slog.Info("sync", "op", a.Type, "status", "Completed", "path", a.Path, "size", humanize.Bytes(uint64(n)))
	case ActionDownload:
		e.stats.RecordDownload(n)
		slog.Info("sync", "op", a.Type, "status", "Completed", "path", a.Path, "size", humanize.Bytes(uint64(n)))
	case ActionDeleteRemote, ActionDeleteLocal:
		e.stats.RecordDelete()
		slog.Info("sync", "op", a.Type, "status", "Completed", "path", a.Path)
	case ActionSkip:
		e.stats.RecordSkip()
		slog.Debug("sync", "op", a.Type, "path", a.Path, "reason", a.Reason)
	}
}

// simulate counts an action as if it had run, sizes come from the fingerprints
func (e *Executor) simulate(a *Action) {
	slog.Info("sync", "op", a.Type, "status", "DryRun", "path", a.Path, "reason", a.Reason)
	switch a.Type {
	case ActionUpload:
		e.stats.RecordUpload(a.Local.Size)
	case ActionDownload:
		e.stats.RecordDownload(a.Remote.Size)
	case ActionDeleteRemote, ActionDeleteLocal:
		e.stats.RecordDelete()
	case ActionSkip:
		e.stats.RecordSkip()
	case ActionConflict:
		e.stats.RecordConflict()
	}
}

func (e *Executor) localPath(rel string) string {
	return filepath.Join(e.localRoot, filepath.FromSlash(rel))
}

// upload returns the number of bytes sent
func (e *Executor) upload(ctx context.Context, a *Action) (int64, error) {
	abs := e.localPath(a.Path)
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, err
	}
	digest := HashBytes(data)
	e.hasher.Remember(abs, info.Size(), info.ModTime(), digest)

	body := data
	contentType := mime.TypeByExtension(filepath.Ext(a.Path))
	if e.opts.UseCompression {
		if body, err = Compress(data); err != nil {
			return 0, fmt.Errorf("compress: %w", err)
		}
		contentType = contentTypeZstd
	}

	key := blob.JoinKey(e.prefix, EncodeKey(a.Path, e.opts.UseCompression))
	resp, err := e.backend.PutObject(ctx, &blob.PutObjectParams{
		Key:         key,
		Body:        bytes.NewReader(body),
		Size:        int64(len(body)),
		ContentType: contentType,
		Metadata:    map[string]string{"sha256": digest.SHA256},
	})
	if err != nil {
		return 0, err
	}

	// the object may have moved between its plain and compressed form
	if a.Remote != nil {
		var stale []string
		if a.Remote.Key != "" && a.Remote.Key != key {
			stale = append(stale, a.Remote.Key)
		}
		stale = append(stale, a.Remote.Stale...)
		e.removeStale(ctx, a.Path, stale)
	}

	rec := &synccache.Record{
		Path:    a.Path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    digest.SHA256,
		ETag:    resp.ETag,
	}
	if err := e.cache.Put(ctx, rec); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

// download returns the number of bytes received
func (e *Executor) download(ctx context.Context, a *Action) (int64, error) {
	remote := a.Remote
	resp, err := e.backend.GetObject(ctx, remote.Key)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	counter := &countingReader{r: resp.Body}
	var body io.Reader = counter
	if remote.Compressed {
		dec, err := NewDecompressor(counter)
		if err != nil {
			return 0, fmt.Errorf("decompress: %w", err)
		}
		defer dec.Close()
		body = dec
	}

	abs := e.localPath(a.Path)
	dir := filepath.Dir(abs)
	if err := utils.EnsureDir(dir); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	digest, _, err := HashReader(io.TeeReader(body, tmp))
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}

	modTime := resp.LastModified
	if modTime.IsZero() {
		modTime = remote.ModTime
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmpName, time.Now(), modTime); err != nil {
			return 0, err
		}
	}

	if err := os.Rename(tmpName, abs); err != nil {
		return 0, err
	}
	committed = true

	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}
	e.hasher.Remember(abs, info.Size(), info.ModTime(), digest)

	etag := resp.ETag
	if etag == "" {
		etag = remote.ETag
	}
	rec := &synccache.Record{
		Path:    a.Path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    digest.SHA256,
		ETag:    etag,
	}
	if err := e.cache.Put(ctx, rec); err != nil {
		return 0, err
	}
	return counter.n, nil
}

func (e *Executor) deleteRemote(ctx context.Context, a *Action) error {
	if err := e.backend.DeleteObject(ctx, a.Remote.Key); err != nil {
		return err
	}
	e.removeStale(ctx, a.Path, a.Remote.Stale)
	return e.cache.Remove(ctx, a.Path)
}

func (e *Executor) deleteLocal(ctx context.Context, a *Action) error {
	abs := e.localPath(a.Path)
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	utils.RemoveEmptyParents(filepath.Dir(abs), e.localRoot)
	return e.cache.Remove(ctx, a.Path)
}

// removeStale deletes leftover keys of a path. Failures only warn, the next listing sees them again.
func (e *Executor) removeStale(ctx context.Context, path string, keys []string) {
	for _, key := range keys {
		if err := e.backend.DeleteObject(ctx, key); err != nil {
			slog.Warn("sync", "op", "RemoveStale", "path", path, "key", key, "error", err)
		}
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
