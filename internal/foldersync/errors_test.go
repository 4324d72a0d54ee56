package foldersync

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathError_Is(t *testing.T) {
	err := transferError(ActionUpload, "a.txt", fs.ErrPermission)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.NotErrorIs(t, err, ErrScan)
	assert.Equal(t, "Upload a.txt: permission denied", err.Error())

	var pe *PathError
	assert.True(t, errors.As(scanError("stat", "b.txt", fs.ErrNotExist), &pe))
	assert.Equal(t, "b.txt", pe.Path)
	assert.ErrorIs(t, pe, ErrScan)
}
