package foldersync

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultHashMemoSize = 4096

// Digest holds both content hashes computed in one read. MD5 is what S3 reports as the etag of
// a single part upload.
type Digest struct {
	SHA256 string
	MD5    string
}

type hashKey struct {
	path    string
	size    int64
	modTime int64
}

// Hasher hashes local files and remembers results for unchanged files. Calls counts the files
// actually read.
type Hasher struct {
	calls atomic.Int64
	memo  *lru.Cache[hashKey, Digest]
}

func NewHasher(memoSize int) *Hasher {
	if memoSize <= 0 {
		memoSize = defaultHashMemoSize
	}
	memo, _ := lru.New[hashKey, Digest](memoSize)
	return &Hasher{memo: memo}
}

// Calls returns how many files were read and hashed so far.
func (h *Hasher) Calls() int64 {
	return h.calls.Load()
}

// HashFile returns the digest of the file at absPath. size and modTime are the values the
// caller observed, they key the memo.
func (h *Hasher) HashFile(absPath string, size int64, modTime time.Time) (Digest, error) {
	key := hashKey{path: absPath, size: size, modTime: modTime.UnixNano()}
	if d, ok := h.memo.Get(key); ok {
		return d, nil
	}
	return h.hash(absPath, key)
}

// Rehash reads and hashes the file even when the memo already holds a digest for it, and
// replaces the memo entry.
func (h *Hasher) Rehash(absPath string, size int64, modTime time.Time) (Digest, error) {
	return h.hash(absPath, hashKey{path: absPath, size: size, modTime: modTime.UnixNano()})
}

func (h *Hasher) hash(absPath string, key hashKey) (Digest, error) {
	h.calls.Add(1)
	f, err := os.Open(absPath)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	d, _, err := HashReader(f)
	if err != nil {
		return Digest{}, err
	}
	h.memo.Add(key, d)
	return d, nil
}

// Remember stores a digest computed elsewhere, e.g. while uploading or downloading.
func (h *Hasher) Remember(absPath string, size int64, modTime time.Time, d Digest) {
	h.memo.Add(hashKey{path: absPath, size: size, modTime: modTime.UnixNano()}, d)
}

// HashReader drains r and returns its digest and length.
func HashReader(r io.Reader) (Digest, int64, error) {
	sha := sha256.New()
	sum := md5.New()
	n, err := io.Copy(io.MultiWriter(sha, sum), r)
	if err != nil {
		return Digest{}, n, err
	}
	return Digest{
		SHA256: hex.EncodeToString(sha.Sum(nil)),
		MD5:    hex.EncodeToString(sum.Sum(nil)),
	}, n, nil
}

// HashBytes is HashReader for data already in memory.
func HashBytes(data []byte) Digest {
	s := sha256.Sum256(data)
	m := md5.Sum(data)
	return Digest{SHA256: hex.EncodeToString(s[:]), MD5: hex.EncodeToString(m[:])}
}
