package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid key")
)

// Backend is the capability surface the sync engine needs from an object store.
// Keys are full object keys, prefix included.
type Backend interface {
	// PutObject creates or overwrites an object and returns the store assigned etag
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)

	// GetObject streams an object. Returns ErrNotFound when the key does not exist.
	// The caller must close Body.
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)

	// HeadObject returns metadata without the body. Returns ErrNotFound when absent.
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)

	// ListObjects returns every object under prefix, following pagination until exhausted
	ListObjects(ctx context.Context, prefix string) ([]*ObjectInfo, error)

	// DeleteObject removes an object. Deleting an absent key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes keys in batches
	DeleteObjects(ctx context.Context, keys []string) error

	// CopyObject performs a server side copy within the bucket
	CopyObject(ctx context.Context, params *CopyObjectParams) (*CopyObjectResponse, error)

	// PresignGetObject returns a time limited download URL
	PresignGetObject(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type ObjectInfo struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

type GetObjectResponse struct {
	Body         io.ReadCloser
	ETag         string
	Size         int64
	LastModified time.Time
}

type PutObjectParams struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
}

type PutObjectResponse struct {
	Key          string
	ETag         string
	Version      string
	Size         int64
	LastModified time.Time
}

type CopyObjectParams struct {
	SourceKey      string
	DestinationKey string
}

type CopyObjectResponse struct {
	ETag         string
	LastModified time.Time
}
