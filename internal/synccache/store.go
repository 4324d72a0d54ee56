// Package synccache persists the last synchronized state of every path so repeated syncs can
// skip unchanged files without hashing them.
package synccache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/tradedata/s3sync/internal/db"
	"github.com/tradedata/s3sync/internal/utils"
)

// MemoryPath opens a throwaway in-memory store
const MemoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS sync_cache (
    path TEXT PRIMARY KEY,
    size INTEGER NOT NULL,
    mod_time INTEGER NOT NULL, -- unix nanoseconds
    hash TEXT NOT NULL,
    etag TEXT NOT NULL,
    last_synced INTEGER NOT NULL -- unix nanoseconds
);
`

const selectColumns = "SELECT path, size, mod_time, hash, etag, last_synced FROM sync_cache"

var (
	ErrCorrupt = errors.New("sync cache corrupt")
	ErrLocked  = errors.New("sync cache locked by another process")
	ErrClosed  = errors.New("sync cache closed")
)

// Store is a sqlite backed cache of Records keyed by relative path.
// Writes are serialized, reads run concurrently and see either the old or the new row.
type Store struct {
	db   *sqlx.DB
	path string
	lock *flock.Flock
	wmu  sync.Mutex
	now  func() time.Time
}

// Open opens or creates the store at path. An existing file that is not a healthy sqlite
// database fails with ErrCorrupt instead of being recreated.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}

	maxConns := 4
	if path == MemoryPath {
		// every connection would get its own memory database
		maxConns = 1
	} else {
		s.lock = flock.New(path + ".lock")
		if err := utils.EnsureParent(path); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock sync cache: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
	}

	existed := false
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		existed = true
	}

	conn, err := db.NewSqliteDb(db.WithPath(path), db.WithMaxOpenConns(maxConns))
	if err != nil {
		s.unlock()
		if existed {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
		}
		return nil, fmt.Errorf("open sync cache: %w", err)
	}

	if existed {
		if err := db.QuickCheck(conn); err != nil {
			conn.Close()
			s.unlock()
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		s.unlock()
		if existed {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
		}
		return nil, fmt.Errorf("init sync cache schema: %w", err)
	}

	s.db = conn
	slog.Debug("sync cache open", "path", path)
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Close releases the database and the process lock.
func (s *Store) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	s.unlock()
	return err
}

// Get returns the record for path, or nil when there is none.
func (s *Store) Get(ctx context.Context, path string) (*Record, error) {
	var row dbRecord
	err := s.db.GetContext(ctx, &row, selectColumns+" WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return row.toRecord(), nil
}

// Put inserts or replaces a record. LastSynced defaults to now.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Path == "" {
		return fmt.Errorf("put: record without path")
	}
	if rec.LastSynced.IsZero() {
		rec.LastSynced = s.now()
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	query := `INSERT OR REPLACE INTO sync_cache (path, size, mod_time, hash, etag, last_synced)
	          VALUES (:path, :size, :mod_time, :hash, :etag, :last_synced)`
	if _, err := s.db.NamedExecContext(ctx, query, toDB(rec)); err != nil {
		return fmt.Errorf("put %s: %w", rec.Path, err)
	}
	slog.Debug("sync cache put", "path", rec.Path, "etag", rec.ETag)
	return nil
}

// Remove deletes the record for path. Removing an absent path is not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sync_cache WHERE path = ?", path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	slog.Debug("sync cache remove", "path", path)
	return nil
}

// ListAll returns every record ordered by path.
func (s *Store) ListAll(ctx context.Context) ([]*Record, error) {
	var rows []dbRecord
	if err := s.db.SelectContext(ctx, &rows, selectColumns+" ORDER BY path"); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// Clear drops every record. The next sync falls back to content comparison for all paths.
func (s *Store) Clear(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM sync_cache")
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Info("sync cache cleared", "path", s.path, "records", n)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_cache"); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}

func (s *Store) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		slog.Warn("sync cache unlock", "path", s.path, "error", err)
	}
}
