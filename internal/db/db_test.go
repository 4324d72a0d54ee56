package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDb_Memory(t *testing.T) {
	database, err := NewSqliteDb()
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
	assert.NoError(t, QuickCheck(database))
}

func TestNewSqliteDb_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "cache.db")

	database, err := NewSqliteDb(WithPath(dbPath), WithMaxOpenConns(1))
	require.NoError(t, err)
	defer database.Close()

	_, err = database.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY);")
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDb_NotADatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "garbage.db")
	junk := make([]byte, 8192)
	for i := range junk {
		junk[i] = byte('x')
	}
	require.NoError(t, os.WriteFile(dbPath, junk, 0o644))

	database, err := NewSqliteDb(WithPath(dbPath))
	if err == nil {
		defer database.Close()
		err = QuickCheck(database)
	}
	assert.Error(t, err)
}
