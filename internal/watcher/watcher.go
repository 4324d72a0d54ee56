// Package watcher re-runs a sync whenever the local tree changes, and optionally on a fixed
// interval to pick up remote changes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rjeczalik/notify"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/utils"
)

const (
	eventBufferSize        = 256
	defaultDebounceTimeout = 2 * time.Second
)

// Syncer runs one sync. foldersync.Job implements it.
type Syncer interface {
	Run(ctx context.Context) (*foldersync.Result, error)
}

var _ Syncer = (*foldersync.Job)(nil)

// FilterCallback returns true for relative paths whose events should be ignored
type FilterCallback func(rel string) bool

// SyncCallback observes the outcome of every run
type SyncCallback func(res *foldersync.Result, err error)

type Watcher struct {
	root     string
	syncer   Syncer
	debounce time.Duration
	interval time.Duration
	filter   FilterCallback
	onSync   SyncCallback
}

type Option func(*Watcher)

// WithDebounce sets how long the tree must stay quiet before a sync starts
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithInterval adds a periodic sync, zero disables it
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

func WithFilter(f FilterCallback) Option {
	return func(w *Watcher) {
		w.filter = f
	}
}

func WithOnSync(f SyncCallback) Option {
	return func(w *Watcher) {
		w.onSync = f
	}
}

func New(root string, syncer Syncer, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		syncer:   syncer,
		debounce: defaultDebounceTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run syncs once, then again after every burst of local changes, until ctx is cancelled.
// Failed runs are reported and retried on the next trigger.
func (w *Watcher) Run(ctx context.Context) error {
	root, err := filepath.EvalSymlinks(w.root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.root = root

	rawEvents := make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(filepath.Join(root, "..."), rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	defer notify.Stop(rawEvents)
	slog.Info("watcher start", "dir", root, "debounce", w.debounce, "interval", w.interval)
	defer slog.Info("watcher stop", "dir", root)

	w.sync(ctx, "startup")

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	pending := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-rawEvents:
			if w.ignored(event.Path()) {
				continue
			}
			slog.Debug("watcher", "event", event.Event(), "path", event.Path())
			pending++
			debounce.Reset(w.debounce)

		case <-debounce.C:
			w.sync(ctx, fmt.Sprintf("%d local changes", pending))
			pending = 0

		case <-tick:
			w.sync(ctx, "interval")
		}
	}
}

func (w *Watcher) ignored(absPath string) bool {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil {
		return true
	}
	rel = utils.ToSlashRel(rel)
	if rel == "" {
		return true
	}
	return w.filter != nil && w.filter(rel)
}

func (w *Watcher) sync(ctx context.Context, trigger string) {
	slog.Info("watcher sync", "trigger", trigger)
	res, err := w.syncer.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		slog.Error("watcher sync failed", "error", err)
	default:
		slog.Info("watcher sync done", "stats", res.Stats)
	}
	if w.onSync != nil {
		w.onSync(res, err)
	}
}
