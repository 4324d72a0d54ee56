package foldersync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_MemoizesUnchangedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	h := NewHasher(0)
	d, err := h.HashFile(path, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", d.SHA256)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", d.MD5)
	assert.EqualValues(t, 1, h.Calls())

	_, err = h.HashFile(path, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.EqualValues(t, 1, h.Calls(), "second hash of an unchanged file comes from the memo")

	_, err = h.HashFile(path, info.Size(), info.ModTime().Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, h.Calls())

	assert.Equal(t, d, HashBytes([]byte("hello")))
}

func TestHasher_MissingFile(t *testing.T) {
	h := NewHasher(8)
	_, err := h.HashFile(filepath.Join(t.TempDir(), "missing"), 1, time.Now())
	assert.Error(t, err)
	assert.EqualValues(t, 1, h.Calls())
}

func TestHasher_RehashBypassesMemo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	h := NewHasher(0)
	_, err = h.HashFile(path, info.Size(), info.ModTime())
	require.NoError(t, err)

	// same size and mtime, new contents
	require.NoError(t, os.WriteFile(path, []byte("world"), 0o644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	d, err := h.Rehash(path, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("world")), d)
	assert.EqualValues(t, 2, h.Calls())

	memo, err := h.HashFile(path, info.Size(), info.ModTime())
	require.NoError(t, err)
	assert.Equal(t, d, memo)
	assert.EqualValues(t, 2, h.Calls())
}
