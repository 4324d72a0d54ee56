package files

import (
	"time"

	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/synccache"
)

type ListRequest struct {
	Prefix string `form:"prefix"`
}

type ListResponse struct {
	Files []*synccache.Record `json:"files"`
	Count int                 `json:"count"`
}

type PresignRequest struct {
	Path string `form:"path" binding:"required"`
}

type PresignResponse struct {
	Path       string    `json:"path"`
	Key        string    `json:"key"`
	Compressed bool      `json:"compressed"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type ConflictEntry struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type SyncResponse struct {
	Stats     foldersync.SyncStats `json:"stats"`
	Conflicts []ConflictEntry      `json:"conflicts"`
	Failed    []string             `json:"failed"`
	Duration  string               `json:"duration"`
}
