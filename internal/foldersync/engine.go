// Package foldersync reconciles a local directory with an object store prefix. Unchanged files
// are recognised from a persistent cache without reading them, compressed objects carry a
// ".zst" suffix that is hidden from the path namespace.
package foldersync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/synccache"
	"github.com/tradedata/s3sync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Engine runs syncs against one backend and one cache. The cache handle is owned by the caller.
type Engine struct {
	backend blob.Backend
	cache   *synccache.Store
	hasher  *Hasher
	opts    Options
}

type EngineOption func(*Engine)

func WithOptions(opts Options) EngineOption {
	return func(e *Engine) {
		e.opts = opts
	}
}

// WithHasher shares a hasher, and with it the hash memo, across engines
func WithHasher(h *Hasher) EngineOption {
	return func(e *Engine) {
		e.hasher = h
	}
}

func NewEngine(backend blob.Backend, cache *synccache.Store, opts ...EngineOption) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cache == nil {
		return nil, errors.New("sync cache is required")
	}

	e := &Engine{
		backend: backend,
		cache:   cache,
		opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hasher == nil {
		e.hasher = NewHasher(0)
	}
	if err := e.opts.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Backend() blob.Backend {
	return e.backend
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) Hasher() *Hasher {
	return e.hasher
}

// Sync reconciles localRoot with remotePrefix once. A listing failure on either side aborts
// before any action runs. Per path failures are counted in the returned stats and reported on
// the failed actions, they do not fail the call.
func (e *Engine) Sync(ctx context.Context, localRoot, remotePrefix string) (*Result, error) {
	start := time.Now()

	root, err := utils.ResolvePath(localRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: local root: %w", ErrListing, err)
	}
	if !utils.DirExists(root) {
		if e.opts.Direction != RemoteToLocal {
			return nil, fmt.Errorf("%w: local root %s does not exist", ErrListing, root)
		}
		if !e.opts.DryRun {
			if err := utils.EnsureDir(root); err != nil {
				return nil, fmt.Errorf("%w: create local root: %w", ErrListing, err)
			}
		}
	}

	matcher, err := NewMatcher(e.opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	if err := matcher.LoadIgnoreFile(root); err != nil {
		slog.Warn("ignore file", "root", root, "error", err)
	}

	slog.Info("sync start", "local", root, "remote", remotePrefix, "direction", e.opts.Direction, "dryRun", e.opts.DryRun)

	var (
		local    Snapshot
		remote   Snapshot
		scanErrs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !utils.DirExists(root) {
			local = Snapshot{}
			return nil
		}
		var err error
		local, scanErrs, err = ScanLocal(gctx, root, matcher)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrListing, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remote, err = ListRemote(gctx, e.backend, remotePrefix, matcher, e.opts.UseCompression)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records, err := e.cache.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sync cache: %w", err)
	}
	cached := make(map[string]*synccache.Record, len(records))
	for _, rec := range records {
		if !matcher.Excluded(rec.Path) {
			cached[rec.Path] = rec
		}
	}

	// a path that could not be scanned, and everything below it, is left alone on every side
	// until it can be
	for _, scanErr := range scanErrs {
		var pe *PathError
		if errors.As(scanErr, &pe) {
			dropSubtree(local, pe.Path)
			dropSubtree(remote, pe.Path)
			dropSubtree(cached, pe.Path)
		}
	}

	planner := NewPlanner(e.opts, root, e.hasher, e.remoteDigest)
	actions := planner.Plan(ctx, local, remote, cached)

	stats := &Stats{}
	stats.AddErrors(len(scanErrs))
	scanned := 0
	for _, a := range actions {
		if a.Local != nil || a.Remote != nil {
			scanned++
		}
	}
	stats.AddScanned(scanned)

	executor := NewExecutor(e.backend, e.cache, e.hasher, e.opts, root, remotePrefix, stats)
	runErr := executor.Run(ctx, actions)

	result := &Result{
		Stats:    stats.Snapshot(),
		Actions:  actions,
		Duration: time.Since(start),
	}
	for _, a := range actions {
		if a.Type == ActionConflict {
			result.Conflicts = append(result.Conflicts, Conflict{
				Path:   a.Path,
				Local:  a.Local,
				Remote: a.Remote,
				Reason: a.Reason,
			})
		}
	}

	slog.Info("sync done", "local", root, "remote", remotePrefix, "stats", result.Stats, "took", result.Duration.Round(time.Millisecond))
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// dropSubtree removes path and every entry nested under it
func dropSubtree[M ~map[string]V, V any](m M, path string) {
	delete(m, path)
	dir := path + "/"
	for p := range m {
		if strings.HasPrefix(p, dir) {
			delete(m, p)
		}
	}
}

// remoteDigest downloads an object and hashes its uncompressed contents
func (e *Engine) remoteDigest(ctx context.Context, fp *Fingerprint) (Digest, error) {
	resp, err := e.backend.GetObject(ctx, fp.Key)
	if err != nil {
		return Digest{}, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if fp.Compressed {
		dec, err := NewDecompressor(resp.Body)
		if err != nil {
			return Digest{}, err
		}
		defer dec.Close()
		body = dec
	}

	d, _, err := HashReader(body)
	return d, err
}

// Sync opens the cache at cachePath, runs one sync and closes it again.
// An unreadable cache fails with ErrCacheCorruption.
func Sync(ctx context.Context, localRoot, remotePrefix, cachePath string, backend blob.Backend, opts Options) (*Result, error) {
	cache, err := synccache.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer cache.Close()

	engine, err := NewEngine(backend, cache, WithOptions(opts))
	if err != nil {
		return nil, err
	}
	return engine.Sync(ctx, localRoot, remotePrefix)
}
