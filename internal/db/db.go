package db

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tradedata/s3sync/internal/utils"
)

const memoryPath = ":memory:"

// WAL lets readers proceed while the single writer commits.
const pragmas = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=NORMAL;
PRAGMA busy_timeout=5000;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=4000;
`

var ErrIntegrity = errors.New("database integrity check failed")

type config struct {
	path         string
	maxOpenConns int
}

// SqliteOption configures NewSqliteDb
type SqliteOption func(*config)

// WithPath sets the database file. ":memory:" keeps it in memory.
func WithPath(path string) SqliteOption {
	return func(c *config) {
		c.path = path
	}
}

// WithMaxOpenConns caps the pool, zero leaves it unlimited
func WithMaxOpenConns(n int) SqliteOption {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

// NewSqliteDb opens a sqlite database and applies the cache pragmas.
func NewSqliteDb(opts ...SqliteOption) (*sqlx.DB, error) {
	cfg := &config{path: memoryPath}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := memoryPath
	if cfg.path != memoryPath {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	slog.Debug("db open", "driver", driverID, "path", cfg.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxOpenConns)
	}

	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return db, nil
}

// QuickCheck runs sqlite's quick_check and reports any problem as ErrIntegrity.
func QuickCheck(db *sqlx.DB) error {
	var rows []string
	if err := db.Select(&rows, "PRAGMA quick_check;"); err != nil {
		return fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	if len(rows) == 1 && strings.EqualFold(rows[0], "ok") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrIntegrity, strings.Join(rows, "; "))
}
