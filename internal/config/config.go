// Package config loads s3sync settings from a config file, S3SYNC_* environment variables and
// command line flags, in increasing order of precedence.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tradedata/s3sync/internal/blob"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix      = "S3SYNC"
	configFileName = "s3sync"
)

var (
	home, _          = os.UserHomeDir()
	DefaultConfigDir = filepath.Join(home, ".config", "s3sync")
	DefaultCacheDir  = filepath.Join(DefaultConfigDir, "cache")
	DefaultLogPath   = filepath.Join(DefaultConfigDir, "logs", "s3sync.log")
)

type Config struct {
	S3    blob.S3Config `mapstructure:"s3" yaml:"s3"`
	Sync  SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Cache CacheConfig   `mapstructure:"cache" yaml:"cache"`
	HTTP  HTTPConfig    `mapstructure:"http" yaml:"http"`
	Auth  AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Log   LogConfig     `mapstructure:"log" yaml:"log"`
	// Path is the config file that was read, empty when none was found
	Path string `mapstructure:"-" yaml:"-"`
}

type SyncConfig struct {
	LocalDir    string        `mapstructure:"local_dir" yaml:"local_dir"`
	Prefix      string        `mapstructure:"prefix" yaml:"prefix"`
	Direction   string        `mapstructure:"direction" yaml:"direction"`
	Delete      bool          `mapstructure:"delete" yaml:"delete"`
	Force       bool          `mapstructure:"force" yaml:"force"`
	DryRun      bool          `mapstructure:"dry_run" yaml:"dry_run"`
	Exclude     []string      `mapstructure:"exclude" yaml:"exclude"`
	MaxParallel int           `mapstructure:"max_parallel" yaml:"max_parallel"`
	Compression bool          `mapstructure:"compression" yaml:"compression"`
	ClockSkew   time.Duration `mapstructure:"clock_skew" yaml:"clock_skew"`
	// watch mode
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

type CacheConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type HTTPConfig struct {
	Addr          string        `mapstructure:"addr" yaml:"addr"`
	CertFile      string        `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile       string        `mapstructure:"key_file" yaml:"key_file"`
	RateLimit     string        `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORSOrigins   []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`
}

type AuthConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	TokenIssuer string        `mapstructure:"token_issuer" yaml:"token_issuer"`
	TokenSecret string        `mapstructure:"token_secret" yaml:"token_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry" yaml:"token_expiry"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

func setDefaults(v *viper.Viper) {
	d := foldersync.DefaultOptions()

	v.SetDefault("s3.provider", blob.ProviderAWS)
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.use_accelerate", false)

	v.SetDefault("sync.local_dir", "")
	v.SetDefault("sync.prefix", "")
	v.SetDefault("sync.direction", d.Direction.String())
	v.SetDefault("sync.delete", false)
	v.SetDefault("sync.force", false)
	v.SetDefault("sync.dry_run", false)
	v.SetDefault("sync.exclude", d.ExcludePatterns)
	v.SetDefault("sync.max_parallel", d.MaxParallel)
	v.SetDefault("sync.compression", d.UseCompression)
	v.SetDefault("sync.clock_skew", "0s")
	v.SetDefault("sync.debounce", "2s")
	v.SetDefault("sync.interval", "0s")

	v.SetDefault("cache.path", "")

	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")
	v.SetDefault("http.rate_limit", "600-M")
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.presign_expiry", "15m")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token_issuer", "s3sync")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_expiry", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", DefaultLogPath)
}

// Loader wraps a private viper instance so tests and commands do not share global state.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// no default, an unset value means "derive from the provider"
	_ = v.BindEnv("s3.force_path_style")
	return &Loader{v: v}
}

// BindFlag lets a command line flag override key. Unchanged flags do not override the file.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// Load reads path, or the first s3sync.{yaml,json,toml} found in the working directory and
// ~/.config/s3sync when path is empty. A missing default file is not an error.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.AddConfigPath(".")
		l.v.AddConfigPath(DefaultConfigDir)
		l.v.SetConfigName(configFileName)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", l.v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = l.v.ConfigFileUsed()
	cfg.S3.ApplyDefaults()

	if cfg.Cache.Path != "" && cfg.Cache.Path != ":memory:" {
		resolved, err := utils.ResolvePath(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("cache.path: %w", err)
		}
		cfg.Cache.Path = resolved
	}

	slog.Debug("config loaded", "path", cfg.Path)
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without overriding variables
// that are already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if !utils.FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Options converts the sync section into engine options.
func (s *SyncConfig) Options() (foldersync.Options, error) {
	dir, err := foldersync.ParseDirection(s.Direction)
	if err != nil {
		return foldersync.Options{}, err
	}
	opts := foldersync.Options{
		Direction:       dir,
		Force:           s.Force,
		Delete:          s.Delete,
		DryRun:          s.DryRun,
		ExcludePatterns: s.Exclude,
		MaxParallel:     s.MaxParallel,
		UseCompression:  s.Compression,
		ClockSkew:       s.ClockSkew,
	}
	if err := opts.Validate(); err != nil {
		return foldersync.Options{}, err
	}
	if _, err := foldersync.NewMatcher(opts.ExcludePatterns); err != nil {
		return foldersync.Options{}, err
	}
	return opts, nil
}

func (s *SyncConfig) Validate() error {
	if _, err := s.Options(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if s.Debounce < 0 || s.Interval < 0 {
		return fmt.Errorf("sync: debounce and interval must not be negative")
	}
	return nil
}

func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TokenIssuer == "" {
		return fmt.Errorf("auth `token_issuer` is required when auth is enabled")
	}
	if len(c.TokenSecret) < 16 {
		return fmt.Errorf("auth `token_secret` must be at least 16 characters when auth is enabled")
	}
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("auth `token_expiry` must be positive")
	}
	return nil
}

func (c *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Validate checks the sections every command needs. S3 and HTTP settings are checked by the
// commands that use them.
func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// CachePath returns cache.path when set. Otherwise every local dir, bucket and prefix
// combination gets its own file under DefaultCacheDir.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	localDir := c.Sync.LocalDir
	if resolved, err := utils.ResolvePath(localDir); err == nil {
		localDir = resolved
	}
	target := strings.Join([]string{localDir, c.S3.Endpoint, c.S3.BucketName, blob.NormalizePrefix(c.Sync.Prefix)}, "\x00")
	sum := sha256.Sum256([]byte(target))
	return filepath.Join(DefaultCacheDir, hex.EncodeToString(sum[:8])+".db")
}

// Redacted returns a copy with credentials masked, safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Sync.Exclude = append([]string(nil), c.Sync.Exclude...)
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return utils.MaskSecret(s)
	}
	out.S3.AccessKey = mask(c.S3.AccessKey)
	out.S3.SecretKey = mask(c.S3.SecretKey)
	out.Auth.TokenSecret = mask(c.Auth.TokenSecret)
	return &out
}

// YAML renders the redacted config.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
