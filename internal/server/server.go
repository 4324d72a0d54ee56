// Package server exposes a running sync job over HTTP: cached state, presigned download URLs
// and an on-demand sync trigger.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/config"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/server/auth"
	"github.com/tradedata/s3sync/internal/synccache"
)

const shutdownTimeout = 5 * time.Second

type Services struct {
	Backend       blob.Backend
	Cache         *synccache.Store
	Job           *foldersync.Job
	Auth          *auth.AuthService
	PresignExpiry time.Duration
}

type Server struct {
	config *config.HTTPConfig
	server *http.Server
}

func New(cfg *config.HTTPConfig, svc *Services) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("http addr required")
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("cert_file and key_file must be set together")
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := SetupRoutes(svc, cfg)
	if err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	return &Server{
		config: cfg,
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("server start", "addr", s.config.Addr, "tls", s.config.CertFile != "")
	defer slog.Info("server stop")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.runHttpServer()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	return s.Stop(context.WithoutCancel(ctx))
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) runHttpServer() error {
	if s.config.CertFile != "" && s.config.KeyFile != "" {
		return s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
	}
	return s.server.ListenAndServe()
}
