package foldersync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Excluded(t *testing.T) {
	m, err := NewMatcher([]string{".git", "*.tmp", "logs/**", "data/raw/*.csv", "**/cache"})
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{path: "a.txt", want: false},
		{path: ".git", want: true},
		{path: ".git/config", want: true},
		{path: "sub/.git/HEAD", want: true},
		{path: "x.tmp", want: true},
		{path: "deep/nested/x.tmp", want: true},
		{path: "x.tmp.keep", want: false},
		{path: "logs/today.log", want: true},
		{path: "mylogs/today.log", want: false},
		{path: "data/raw/a.csv", want: true},
		{path: "data/raw/a.parquet", want: false},
		{path: "data/raw/sub/a.csv", want: false},
		{path: "a/b/cache/x.bin", want: true},
		{path: IgnoreFileName, want: true},
		{path: "d/" + tempPrefix + "123", want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Excluded(tt.path), tt.path)
	}
}

func TestMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher([]string{"[unterminated"})
	assert.Error(t, err)
}

func TestMatcher_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, IgnoreFileName), []byte("# comment\n*.bak\nscratch/\n"), 0o644))

	m, err := NewMatcher(nil)
	require.NoError(t, err)
	require.NoError(t, m.LoadIgnoreFile(root))

	assert.True(t, m.Excluded("old.bak"))
	assert.True(t, m.Excluded("scratch/notes.txt"))
	assert.False(t, m.Excluded("keep.txt"))

	missing, err := NewMatcher(nil)
	require.NoError(t, err)
	require.NoError(t, missing.LoadIgnoreFile(t.TempDir()))
	assert.False(t, missing.Excluded("old.bak"))
}
