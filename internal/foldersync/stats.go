package foldersync

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// SyncStats is a point in time copy of the counters of one sync run.
type SyncStats struct {
	FilesScanned    int64 `json:"files_scanned"`
	FilesUploaded   int64 `json:"files_uploaded"`
	FilesDownloaded int64 `json:"files_downloaded"`
	FilesDeleted    int64 `json:"files_deleted"`
	FilesSkipped    int64 `json:"files_skipped"`
	BytesUploaded   int64 `json:"bytes_uploaded"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	Errors          int64 `json:"errors"`
	Conflicts       int64 `json:"conflicts"`
}

func (s SyncStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("scanned", s.FilesScanned),
		slog.Int64("uploaded", s.FilesUploaded),
		slog.Int64("downloaded", s.FilesDownloaded),
		slog.Int64("deleted", s.FilesDeleted),
		slog.Int64("skipped", s.FilesSkipped),
		slog.String("bytesUp", humanize.Bytes(uint64(s.BytesUploaded))),
		slog.String("bytesDown", humanize.Bytes(uint64(s.BytesDownloaded))),
		slog.Int64("conflicts", s.Conflicts),
		slog.Int64("errors", s.Errors),
	)
}

func (s SyncStats) String() string {
	return fmt.Sprintf("scanned=%d uploaded=%d (%s) downloaded=%d (%s) deleted=%d skipped=%d conflicts=%d errors=%d",
		s.FilesScanned,
		s.FilesUploaded, humanize.Bytes(uint64(s.BytesUploaded)),
		s.FilesDownloaded, humanize.Bytes(uint64(s.BytesDownloaded)),
		s.FilesDeleted, s.FilesSkipped, s.Conflicts, s.Errors)
}

// Stats accumulates counters from concurrent workers without locks.
type Stats struct {
	filesScanned    atomic.Int64
	filesUploaded   atomic.Int64
	filesDownloaded atomic.Int64
	filesDeleted    atomic.Int64
	filesSkipped    atomic.Int64
	bytesUploaded   atomic.Int64
	bytesDownloaded atomic.Int64
	errors          atomic.Int64
	conflicts       atomic.Int64
}

func (s *Stats) AddScanned(n int) {
	s.filesScanned.Add(int64(n))
}

func (s *Stats) RecordUpload(bytes int64) {
	s.filesUploaded.Add(1)
	s.bytesUploaded.Add(bytes)
}

func (s *Stats) RecordDownload(bytes int64) {
	s.filesDownloaded.Add(1)
	s.bytesDownloaded.Add(bytes)
}

func (s *Stats) RecordDelete() {
	s.filesDeleted.Add(1)
}

func (s *Stats) RecordSkip() {
	s.filesSkipped.Add(1)
}

func (s *Stats) RecordConflict() {
	s.conflicts.Add(1)
}

func (s *Stats) RecordError() {
	s.errors.Add(1)
}

// AddErrors counts failures that happened outside of an action, e.g. while scanning
func (s *Stats) AddErrors(n int) {
	s.errors.Add(int64(n))
}

func (s *Stats) Snapshot() SyncStats {
	return SyncStats{
		FilesScanned:    s.filesScanned.Load(),
		FilesUploaded:   s.filesUploaded.Load(),
		FilesDownloaded: s.filesDownloaded.Load(),
		FilesDeleted:    s.filesDeleted.Load(),
		FilesSkipped:    s.filesSkipped.Load(),
		BytesUploaded:   s.bytesUploaded.Load(),
		BytesDownloaded: s.bytesDownloaded.Load(),
		Errors:          s.errors.Load(),
		Conflicts:       s.conflicts.Load(),
	}
}
