package foldersync

import (
	"fmt"
	"strings"
	"time"

	"github.com/tradedata/s3sync/internal/synccache"
)

type Direction int

const (
	LocalToRemote Direction = iota
	RemoteToLocal
	Bidirectional
)

func (d Direction) String() string {
	switch d {
	case LocalToRemote:
		return "local-to-remote"
	case RemoteToLocal:
		return "remote-to-local"
	case Bidirectional:
		return "bidirectional"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts the canonical names and the aliases used in config files.
func ParseDirection(s string) (Direction, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")
	norm = strings.ReplaceAll(norm, "s3", "remote")
	switch norm {
	case "local-to-remote", "upload", "push", "up":
		return LocalToRemote, nil
	case "remote-to-local", "download", "pull", "down":
		return RemoteToLocal, nil
	case "bidirectional", "both", "bidi", "sync":
		return Bidirectional, nil
	}
	return 0, fmt.Errorf("unknown sync direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Direction) allowsUpload() bool {
	return d == LocalToRemote || d == Bidirectional
}

func (d Direction) allowsDownload() bool {
	return d == RemoteToLocal || d == Bidirectional
}

// the remote side is allowed to remove local files
func (d Direction) allowsDeleteLocal() bool {
	return d == RemoteToLocal || d == Bidirectional
}

// the local side is allowed to remove remote objects
func (d Direction) allowsDeleteRemote() bool {
	return d == LocalToRemote || d == Bidirectional
}

type Options struct {
	Direction Direction
	// Force bypasses the cache fast path and size shortcuts, every pair present on both sides
	// is compared by content
	Force bool
	// Delete permits DeleteLocal and DeleteRemote actions
	Delete bool
	// DryRun plans and reports without any I/O or cache mutation
	DryRun bool
	// ExcludePatterns are doublestar globs matched against relative paths and their ancestors
	ExcludePatterns []string
	MaxParallel     int
	UseCompression  bool
	// ClockSkew widens the window in which two modification times count as a tie
	ClockSkew time.Duration
}

func DefaultOptions() Options {
	return Options{
		Direction:       LocalToRemote,
		ExcludePatterns: DefaultExcludePatterns(),
		MaxParallel:     4,
		UseCompression:  true,
	}
}

func DefaultExcludePatterns() []string {
	return []string{".git", ".DS_Store", "*.tmp", "*.swp"}
}

func (o *Options) Validate() error {
	if o.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be positive, got %d", o.MaxParallel)
	}
	if o.ClockSkew < 0 {
		return fmt.Errorf("clock_skew must not be negative")
	}
	switch o.Direction {
	case LocalToRemote, RemoteToLocal, Bidirectional:
	default:
		return fmt.Errorf("invalid direction %d", o.Direction)
	}
	return nil
}

// Fingerprint identifies the state of one file on one side.
type Fingerprint struct {
	// Path is the slash separated relative path, the join key across sides
	Path    string
	Size    int64
	ModTime time.Time
	// Hash is the SHA-256 of the uncompressed contents, filled lazily
	Hash string
	// remote only
	Key        string
	ETag       string
	Compressed bool
	// Stale lists other keys that decode to the same path, e.g. the plain copy left behind
	// after compression was switched on
	Stale []string
}

type ActionType string

const (
	ActionUpload       ActionType = "Upload"
	ActionDownload     ActionType = "Download"
	ActionDeleteRemote ActionType = "DeleteRemote"
	ActionDeleteLocal  ActionType = "DeleteLocal"
	ActionSkip         ActionType = "Skip"
	ActionConflict     ActionType = "Conflict"
	// ActionForget drops a cache record for a path gone from both sides. No transfer.
	ActionForget ActionType = "Forget"
)

// Action is the decision for one path. It is consumed exactly once by the executor.
type Action struct {
	Type   ActionType
	Path   string
	Local  *Fingerprint
	Remote *Fingerprint
	Cached *synccache.Record
	// Record is written to the cache by a Skip, nil when the cache already reflects both sides
	Record *synccache.Record
	// Reason is a short human readable explanation
	Reason string
	// Err marks an action that could not be planned, it counts as one error
	Err error
}

func (a *Action) String() string {
	return fmt.Sprintf("%s %s (%s)", a.Type, a.Path, a.Reason)
}

// Conflict is a path whose sides differ with no safe winner.
type Conflict struct {
	Path   string
	Local  *Fingerprint
	Remote *Fingerprint
	Reason string
}

type Result struct {
	Stats     SyncStats
	Conflicts []Conflict
	Actions   []*Action
	Duration  time.Duration
}

// HasChanges reports whether the plan moved or removed anything.
func (r *Result) HasChanges() bool {
	s := r.Stats
	return s.FilesUploaded+s.FilesDownloaded+s.FilesDeleted > 0
}
