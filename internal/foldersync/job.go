package foldersync

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned by TryRun while another run of the same job is in progress
var ErrBusy = errors.New("sync already running")

// Job binds an engine to one local root and remote prefix and serializes its runs. The watcher
// and the HTTP trigger share a Job so they never sync the same tree concurrently.
type Job struct {
	engine    *Engine
	localRoot string
	prefix    string

	runMu sync.Mutex

	mu      sync.RWMutex
	running bool
	status  JobStatus
}

type JobStatus struct {
	Runs     int           `json:"runs"`
	Running  bool          `json:"running"`
	LastRun  time.Time     `json:"last_run,omitzero"`
	Duration time.Duration `json:"duration"`
	Stats    SyncStats     `json:"stats"`
	Error    string        `json:"error,omitempty"`
}

func NewJob(engine *Engine, localRoot, prefix string) *Job {
	return &Job{engine: engine, localRoot: localRoot, prefix: prefix}
}

func (j *Job) LocalRoot() string {
	return j.localRoot
}

func (j *Job) Prefix() string {
	return j.prefix
}

// Run waits for any run in progress and then syncs.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	j.runMu.Lock()
	defer j.runMu.Unlock()
	return j.run(ctx)
}

// TryRun syncs only when no other run is in progress, otherwise it returns ErrBusy.
func (j *Job) TryRun(ctx context.Context) (*Result, error) {
	if !j.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer j.runMu.Unlock()
	return j.run(ctx)
}

func (j *Job) run(ctx context.Context) (*Result, error) {
	j.setRunning(true)
	start := time.Now()
	res, err := j.engine.Sync(ctx, j.localRoot, j.prefix)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = false
	j.status.Runs++
	j.status.LastRun = start
	j.status.Duration = time.Since(start)
	j.status.Error = ""
	if res != nil {
		j.status.Stats = res.Stats
	}
	if err != nil {
		j.status.Error = err.Error()
	}
	return res, err
}

func (j *Job) setRunning(v bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.running = v
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := j.status
	s.Running = j.running
	return s
}
