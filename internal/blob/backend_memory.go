package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Operation names passed to a MemoryBackend failure hook
const (
	OpPut    = "put"
	OpGet    = "get"
	OpHead   = "head"
	OpList   = "list"
	OpDelete = "delete"
	OpCopy   = "copy"
)

// FailureFunc returns a non-nil error to make an operation on key fail
type FailureFunc func(op, key string) error

type memoryObject struct {
	data         []byte
	etag         string
	lastModified time.Time
}

// MemoryBackend is an in-process Backend with S3-like semantics: the etag of an object is the
// hex MD5 of its contents and every put refreshes its last-modified time.
type MemoryBackend struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]*memoryObject
	failure FailureFunc
	ops     map[string]int
	now     func() time.Time
}

func NewMemoryBackend(bucket string) *MemoryBackend {
	return &MemoryBackend{
		bucket:  bucket,
		objects: make(map[string]*memoryObject),
		ops:     make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetFailure installs a failure hook, nil removes it
func (m *MemoryBackend) SetFailure(fn FailureFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = fn
}

// SetLastModified overrides the last-modified time of an existing object
func (m *MemoryBackend) SetLastModified(key string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	obj.lastModified = t
	return nil
}

// Bytes returns a copy of an object's contents
func (m *MemoryBackend) Bytes(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns every stored key in order
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OpCount returns how many times op was called
func (m *MemoryBackend) OpCount(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ops[op]
}

func (m *MemoryBackend) begin(op, key string) error {
	m.ops[op]++
	if m.failure != nil {
		return m.failure(op, key)
	}
	return nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidateKey(params.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, params.Key)
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if params.Size >= 0 && int64(len(data)) != params.Size {
		return nil, fmt.Errorf("put %s: size mismatch, declared %d, read %d", params.Key, params.Size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpPut, params.Key); err != nil {
		return nil, err
	}

	sum := md5.Sum(data)
	obj := &memoryObject{data: data, etag: hex.EncodeToString(sum[:]), lastModified: m.now()}
	m.objects[params.Key] = obj

	return &PutObjectResponse{
		Key:          params.Key,
		ETag:         obj.etag,
		Size:         int64(len(data)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpGet, key); err != nil {
		return nil, err
	}

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &GetObjectResponse{
		Body:         io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))),
		ETag:         obj.etag,
		Size:         int64(len(obj.data)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpHead, key); err != nil {
		return nil, err
	}

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &ObjectInfo{Key: key, ETag: obj.etag, Size: int64(len(obj.data)), LastModified: obj.lastModified}, nil
}

func (m *MemoryBackend) ListObjects(ctx context.Context, prefix string) ([]*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpList, prefix); err != nil {
		return nil, err
	}

	objects := make([]*ObjectInfo, 0, len(m.objects))
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, &ObjectInfo{Key: key, ETag: obj.etag, Size: int64(len(obj.data)), LastModified: obj.lastModified})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDelete, key); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryBackend) DeleteObjects(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := m.DeleteObject(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryBackend) CopyObject(ctx context.Context, params *CopyObjectParams) (*CopyObjectResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidateKey(params.DestinationKey) {
		return nil, fmt.Errorf("%w: destination %q", ErrInvalidKey, params.DestinationKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCopy, params.SourceKey); err != nil {
		return nil, err
	}

	src, ok := m.objects[params.SourceKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, params.SourceKey)
	}
	dst := &memoryObject{data: bytes.Clone(src.data), etag: src.etag, lastModified: m.now()}
	m.objects[params.DestinationKey] = dst
	return &CopyObjectResponse{ETag: dst.etag, LastModified: dst.lastModified}, nil
}

func (m *MemoryBackend) PresignGetObject(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !ValidateKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	u := url.URL{
		Scheme:   "memory",
		Host:     m.bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {m.now().Add(expiry).Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

var _ Backend = (*MemoryBackend)(nil)
