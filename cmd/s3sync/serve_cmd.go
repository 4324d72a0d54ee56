package main

import (
	"log/slog"
	"net"

	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/server"
	"github.com/tradedata/s3sync/internal/server/auth"
	"github.com/tradedata/s3sync/internal/watcher"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve [local-dir] [prefix]",
		Short: "Serve sync status, file listings and download URLs over HTTP",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyTargetArgs(args)
			if err := a.requireLocalDir(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			authService, err := auth.NewAuthService(&a.cfg.Auth)
			if err != nil {
				return err
			}
			if !authService.IsEnabled() && !isLoopback(a.cfg.HTTP.Addr) {
				slog.Warn("auth disabled on a non loopback address", "addr", a.cfg.HTTP.Addr)
			}

			engine, cache, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close()

			job := foldersync.NewJob(engine, a.cfg.Sync.LocalDir, a.cfg.Sync.Prefix)
			srv, err := server.New(&a.cfg.HTTP, &server.Services{
				Backend:       engine.Backend(),
				Cache:         cache,
				Job:           job,
				Auth:          authService,
				PresignExpiry: a.cfg.HTTP.PresignExpiry,
			})
			if err != nil {
				return err
			}

			var w *watcher.Watcher
			if watch {
				if w, err = a.newWatcher(job, nil); err != nil {
					return err
				}
			}

			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.Go(func() error {
				return srv.Start(ctx)
			})
			if w != nil {
				eg.Go(func() error {
					return w.Run(ctx)
				})
			}

			defer slog.Info("Bye!")
			return eg.Wait()
		},
	}

	addSyncFlags(cmd)
	addWatchFlags(cmd)
	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8080)")
	cmd.Flags().String("cert", "", "TLS certificate file")
	cmd.Flags().String("key", "", "TLS key file")
	cmd.Flags().String("rate-limit", "", "per client rate limit for /v1, e.g. 600-M")
	cmd.Flags().StringSlice("cors", nil, "browser origins allowed to call the API")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "also sync whenever the local directory changes")
	return cmd
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
