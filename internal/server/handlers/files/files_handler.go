package files

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/server/handlers/api"
	"github.com/tradedata/s3sync/internal/synccache"
)

type FilesHandler struct {
	backend       blob.Backend
	cache         *synccache.Store
	job           *foldersync.Job
	presignExpiry time.Duration
}

func New(backend blob.Backend, cache *synccache.Store, job *foldersync.Job, presignExpiry time.Duration) *FilesHandler {
	return &FilesHandler{
		backend:       backend,
		cache:         cache,
		job:           job,
		presignExpiry: presignExpiry,
	}
}

// List returns the cached sync state, optionally limited to paths under prefix.
func (h *FilesHandler) List(ctx *gin.Context) {
	var req ListRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind query: %w", err))
		return
	}

	records, err := h.cache.ListAll(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeCacheReadError, err)
		return
	}

	files := make([]*synccache.Record, 0, len(records))
	for _, rec := range records {
		if req.Prefix == "" || strings.HasPrefix(rec.Path, req.Prefix) {
			files = append(files, rec)
		}
	}

	ctx.PureJSON(http.StatusOK, &ListResponse{Files: files, Count: len(files)})
}

// PresignURL returns a time limited download URL for a synced path.
func (h *FilesHandler) PresignURL(ctx *gin.Context) {
	var req PresignRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind query: %w", err))
		return
	}

	fp, err := foldersync.LookupRemote(ctx, h.backend, h.job.Prefix(), req.Path)
	switch {
	case errors.Is(err, blob.ErrInvalidKey):
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	case errors.Is(err, blob.ErrNotFound):
		api.AbortWithError(ctx, http.StatusNotFound, api.CodeObjectNotFound, err)
		return
	case err != nil:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodePresignFailed, err)
		return
	}

	url, err := h.backend.PresignGetObject(ctx, fp.Key, h.presignExpiry)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodePresignFailed, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &PresignResponse{
		Path:       fp.Path,
		Key:        fp.Key,
		Compressed: fp.Compressed,
		Size:       fp.Size,
		URL:        url,
		ExpiresAt:  time.Now().Add(h.presignExpiry).UTC(),
	})
}

// TriggerSync runs the job once. Responds 409 while another run is in progress.
func (h *FilesHandler) TriggerSync(ctx *gin.Context) {
	// a client that disconnects does not abort the run
	res, err := h.job.TryRun(context.WithoutCancel(ctx.Request.Context()))
	if errors.Is(err, foldersync.ErrBusy) {
		api.AbortWithError(ctx, http.StatusConflict, api.CodeSyncBusy, err)
		return
	}
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeSyncFailed, err)
		return
	}

	resp := &SyncResponse{
		Stats:     res.Stats,
		Conflicts: make([]ConflictEntry, 0, len(res.Conflicts)),
		Failed:    make([]string, 0),
		Duration:  res.Duration.Round(time.Millisecond).String(),
	}
	for _, c := range res.Conflicts {
		resp.Conflicts = append(resp.Conflicts, ConflictEntry{Path: c.Path, Reason: c.Reason})
	}
	for _, a := range res.Actions {
		if a.Err != nil {
			resp.Failed = append(resp.Failed, a.Path)
		}
	}

	ctx.PureJSON(http.StatusOK, resp)
}

func (h *FilesHandler) Status(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, h.job.Status())
}
