package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ResolvePath("~/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), got)

	got, err = ResolvePath("a/../b")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "b", filepath.Base(got))

	_, err = ResolvePath("")
	assert.Error(t, err)
}

func TestToSlashRel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: ".", want: ""},
		{in: "a/b.txt", want: "a/b.txt"},
		{in: "./a//b.txt", want: "a/b.txt"},
		{in: "/a/b", want: "a/b"},
		{in: "a/./c/../b", want: "a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToSlashRel(filepath.FromSlash(tt.in)), tt.in)
	}
}

func TestEnsureParentAndExists(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "x", "y", "z.txt")

	require.NoError(t, EnsureParent(file))
	assert.True(t, DirExists(filepath.Dir(file)))
	assert.False(t, FileExists(file))

	require.NoError(t, os.WriteFile(file, []byte("z"), 0o644))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}

func TestRemoveEmptyParents(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	keep := filepath.Join(root, "a", "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("k"), 0o644))

	RemoveEmptyParents(deep, root)

	assert.NoDirExists(t, filepath.Join(root, "a", "b"))
	assert.DirExists(t, filepath.Join(root, "a"))
	assert.DirExists(t, root)
}
