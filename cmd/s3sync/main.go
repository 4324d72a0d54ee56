package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/config"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/synccache"
	"github.com/tradedata/s3sync/internal/utils"
	"github.com/tradedata/s3sync/internal/version"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// flag name -> config key. Flags only override the config when they were set explicitly.
var flagKeys = map[string]string{
	"bucket":     "s3.bucket_name",
	"region":     "s3.region",
	"endpoint":   "s3.endpoint",
	"provider":   "s3.provider",
	"cache":      "cache.path",
	"log-level":  "log.level",
	"log-file":   "log.file",
	"local-dir":  "sync.local_dir",
	"prefix":     "sync.prefix",
	"direction":  "sync.direction",
	"delete":     "sync.delete",
	"force":      "sync.force",
	"dry-run":    "sync.dry_run",
	"exclude":    "sync.exclude",
	"parallel":   "sync.max_parallel",
	"compress":   "sync.compression",
	"clock-skew": "sync.clock_skew",
	"debounce":   "sync.debounce",
	"interval":   "sync.interval",
	"addr":       "http.addr",
	"cert":       "http.cert_file",
	"key":        "http.key_file",
	"rate-limit": "http.rate_limit",
	"cors":       "http.cors_origins",
}

const skipConfigAnnotation = "s3sync/skip-config"

type BackendFactory func(ctx context.Context, cfg *blob.S3Config) (blob.Backend, error)

func newS3Backend(ctx context.Context, cfg *blob.S3Config) (blob.Backend, error) {
	return blob.NewS3BackendWithConfig(ctx, cfg)
}

// app carries the state shared by all commands of one invocation
type app struct {
	loader     *config.Loader
	cfg        *config.Config
	newBackend BackendFactory
	logFile    io.Closer
}

func newApp(factory BackendFactory) *app {
	return &app{
		loader:     config.NewLoader(),
		newBackend: factory,
	}
}

func (a *app) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

func (a *app) backend(ctx context.Context) (blob.Backend, error) {
	return a.newBackend(ctx, &a.cfg.S3)
}

func (a *app) requireLocalDir() error {
	if a.cfg.Sync.LocalDir == "" {
		return fmt.Errorf("local directory required, pass it as an argument, --local-dir or sync.local_dir")
	}
	return nil
}

// openEngine wires the backend, the cache of the configured target and the engine. The caller
// closes the returned store.
func (a *app) openEngine(ctx context.Context) (*foldersync.Engine, *synccache.Store, error) {
	opts, err := a.cfg.Sync.Options()
	if err != nil {
		return nil, nil, err
	}
	backend, err := a.backend(ctx)
	if err != nil {
		return nil, nil, err
	}
	cache, err := synccache.Open(a.cfg.CachePath())
	if err != nil {
		return nil, nil, err
	}
	engine, err := foldersync.NewEngine(backend, cache, foldersync.WithOptions(opts))
	if err != nil {
		cache.Close()
		return nil, nil, err
	}
	return engine, cache, nil
}

// applyTargetArgs lets `<local-dir> [prefix]` positional arguments override the config
func (a *app) applyTargetArgs(args []string) {
	if len(args) > 0 {
		a.cfg.Sync.LocalDir = args[0]
	}
	if len(args) > 1 {
		a.cfg.Sync.Prefix = args[1]
	}
}

func (a *app) loadConfig(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := a.loader.BindFlag(key, flag); err != nil {
				return err
			}
		}
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := a.loader.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	return a.setupLogging(cmd.ErrOrStderr())
}

func (a *app) setupLogging(stderr io.Writer) error {
	level, err := a.cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	noColor := true
	if f, ok := stderr.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	handlers := []slog.Handler{
		tint.NewHandler(stderr, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    noColor,
		}),
	}

	if a.cfg.Log.File != "" {
		if err := utils.EnsureParent(a.cfg.Log.File); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(a.cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = file
		handlers = append(handlers, slog.NewTextHandler(utils.NewLogInterceptor(file), &slog.HandlerOptions{
			Level: slog.LevelDebug,
			// the interceptor stamps every line
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == slog.TimeKey && len(groups) == 0 {
					return slog.Attr{}
				}
				return attr
			},
		}))
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "s3sync",
		Short:         "Incremental folder sync between a local directory and an S3 prefix",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfigAnnotation] != "" {
				return nil
			}
			return a.loadConfig(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", "", "config file (default ./s3sync.yaml or ~/.config/s3sync/s3sync.yaml)")
	flags.String("env-file", ".env", "dotenv file loaded before the config")
	flags.StringP("bucket", "b", "", "S3 bucket")
	flags.String("region", "", "S3 region")
	flags.String("endpoint", "", "S3 endpoint for non AWS providers")
	flags.String("provider", "", "S3 provider (aws, b2, r2, minio, generic)")
	flags.String("cache", "", "sync cache database (default derived from the sync target)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file, empty to disable")

	rootCmd.AddCommand(
		newSyncCmd(a),
		newWatchCmd(a),
		newCacheCmd(a),
		newPresignCmd(a),
		newRmCmd(a),
		newServeCmd(a),
		newClientCmd(a),
		newTokenCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	a := newApp(newS3Backend)
	defer a.Close()

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(a)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		stop()
		a.Close()
		os.Exit(1)
	}
}
