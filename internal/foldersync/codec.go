package foldersync

import (
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix marks remote keys holding zstd compressed contents
const CompressedSuffix = ".zst"

// EncodeKey maps a relative path to its remote form.
func EncodeKey(path string, compressed bool) string {
	if compressed {
		return path + CompressedSuffix
	}
	return path
}

// DecodeKey is the inverse of EncodeKey for the same compression mode. With compression off
// every key is a plain path, so a local file named "x.zst" maps back to itself.
func DecodeKey(key string, useCompression bool) (path string, compressed bool) {
	if useCompression && strings.HasSuffix(key, CompressedSuffix) && len(key) > len(CompressedSuffix) {
		return strings.TrimSuffix(key, CompressedSuffix), true
	}
	return key, false
}

// level 3 equivalent, fixed for every transfer
const compressionLevel = zstd.SpeedDefault

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error
)

func sharedEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(compressionLevel), zstd.WithZeroFrames(true))
	})
	return encoder, encoderErr
}

// Compress returns the zstd frame for data.
func Compress(data []byte) ([]byte, error) {
	enc, err := sharedEncoder()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// NewDecompressor wraps r in a streaming zstd decoder. Closing the returned reader releases
// the decoder, it does not close r.
func NewDecompressor(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
