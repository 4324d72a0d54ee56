package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/config"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/server/auth"
	"github.com/tradedata/s3sync/internal/server/handlers/api"
	"github.com/tradedata/s3sync/internal/server/handlers/files"
	"github.com/tradedata/s3sync/internal/synccache"
)

const testSecret = "0123456789abcdef-test"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	handler http.Handler
	auth    *auth.AuthService
	backend *blob.MemoryBackend
}

func newTestServer(t *testing.T, authEnabled bool, rateLimit string) *testServer {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	cache, err := synccache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	backend := blob.NewMemoryBackend("test-bucket")
	engine, err := foldersync.NewEngine(backend, cache)
	require.NoError(t, err)

	authSvc, err := auth.NewAuthService(&config.AuthConfig{
		Enabled:     authEnabled,
		TokenIssuer: "s3sync",
		TokenSecret: testSecret,
		TokenExpiry: time.Hour,
	})
	require.NoError(t, err)

	handler, err := SetupRoutes(&Services{
		Backend:       backend,
		Cache:         cache,
		Job:           foldersync.NewJob(engine, root, "ticks"),
		Auth:          authSvc,
		PresignExpiry: 15 * time.Minute,
	}, &config.HTTPConfig{RateLimit: rateLimit, CORSOrigins: []string{"https://dashboard.example.com"}})
	require.NoError(t, err)

	return &testServer{handler: handler, auth: authSvc, backend: backend}
}

func (s *testServer) do(t *testing.T, method, target string, authorized bool, out any) int {
	req := httptest.NewRequest(method, target, nil)
	if authorized {
		token, err := s.auth.IssueToken("test")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, true, "")

	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", false, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestV1RequiresToken(t *testing.T) {
	s := newTestServer(t, true, "")

	var apiErr api.APIError
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/files", false, &apiErr))
	assert.Equal(t, api.CodeUnauthorized, apiErr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSyncThenBrowse(t *testing.T) {
	s := newTestServer(t, true, "")

	var syncResp files.SyncResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/sync", true, &syncResp))
	assert.Equal(t, int64(1), syncResp.Stats.FilesUploaded)
	assert.Empty(t, syncResp.Failed)

	var list files.ListResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/files", true, &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "a.txt", list.Files[0].Path)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/files?prefix=zzz", true, &list))
	assert.Zero(t, list.Count)

	var presign files.PresignResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/url?path=a.txt", true, &presign))
	assert.Equal(t, "ticks/a.txt.zst", presign.Key)
	assert.True(t, presign.Compressed)
	assert.Contains(t, presign.URL, "ticks/a.txt.zst")

	var status foldersync.JobStatus
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/status", true, &status))
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, int64(1), status.Stats.FilesUploaded)
}

func TestSyncOutlivesClientDisconnect(t *testing.T) {
	s := newTestServer(t, false, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/v1/sync", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var syncResp files.SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &syncResp))
	assert.Equal(t, int64(1), syncResp.Stats.FilesUploaded)
	assert.Equal(t, []string{"ticks/a.txt.zst"}, s.backend.Keys())
}

func TestPresignErrors(t *testing.T) {
	s := newTestServer(t, true, "")

	var apiErr api.APIError
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/url", true, &apiErr))
	assert.Equal(t, api.CodeInvalidRequest, apiErr.Code)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/url?path=missing.txt", true, &apiErr))
	assert.Equal(t, api.CodeObjectNotFound, apiErr.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/url?path=../etc/passwd", true, &apiErr))
}

func TestAuthDisabled(t *testing.T) {
	s := newTestServer(t, false, "")

	var list files.ListResponse
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/files", false, &list))
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, false, "2-M")

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/status", false, nil))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/status", false, nil))

	var apiErr api.APIError
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodGet, "/v1/status", false, &apiErr))
	assert.Equal(t, api.CodeRateLimited, apiErr.Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", false, nil))
}

func TestInvalidRateLimit(t *testing.T) {
	_, err := SetupRoutes(&Services{}, &config.HTTPConfig{RateLimit: "fast"})
	assert.Error(t, err)
}

func TestServerStartStop(t *testing.T) {
	srv, err := New(&config.HTTPConfig{Addr: "127.0.0.1:0"}, &Services{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err = New(&config.HTTPConfig{Addr: "127.0.0.1:0", CertFile: "cert.pem"}, &Services{})
	assert.Error(t, err)
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	s := newTestServer(t, true, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	// preflight from the allowed origin
	req = httptest.NewRequest(http.MethodOptions, "/v1/files", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	// other origins are refused
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
