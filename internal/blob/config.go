package blob

import (
	"fmt"
	"strings"

	"github.com/tradedata/s3sync/internal/utils"
)

const (
	ProviderAWS     = "aws"
	ProviderB2      = "b2"
	ProviderR2      = "r2"
	ProviderMinio   = "minio"
	ProviderGeneric = "generic"
)

type S3Config struct {
	Provider       string `mapstructure:"provider" yaml:"provider"`
	BucketName     string `mapstructure:"bucket_name" yaml:"bucket_name"`
	Region         string `mapstructure:"region" yaml:"region"`
	AccessKey      string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey      string `mapstructure:"secret_key" yaml:"secret_key"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	ForcePathStyle *bool  `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	UseAccelerate  bool   `mapstructure:"use_accelerate" yaml:"use_accelerate"`
}

// ParseProvider maps the provider names and aliases accepted in config files.
// Unknown names fall back to generic.
func ParseProvider(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "aws", "s3", "aws-s3":
		return ProviderAWS
	case "b2", "backblaze", "backblaze-b2":
		return ProviderB2
	case "r2", "cloudflare", "cloudflare-r2":
		return ProviderR2
	case "minio":
		return ProviderMinio
	default:
		return ProviderGeneric
	}
}

// ApplyDefaults fills region, endpoint and addressing style from the provider preset.
func (c *S3Config) ApplyDefaults() {
	c.Provider = ParseProvider(c.Provider)

	if c.Region == "" {
		switch c.Provider {
		case ProviderB2:
			c.Region = "us-west-002"
		case ProviderR2:
			c.Region = "auto"
		default:
			c.Region = "us-east-1"
		}
	}

	if c.Endpoint == "" && c.Provider == ProviderB2 {
		c.Endpoint = fmt.Sprintf("https://s3.%s.backblazeb2.com", c.Region)
	}

	if c.ForcePathStyle == nil {
		pathStyle := c.Endpoint != ""
		c.ForcePathStyle = &pathStyle
	}
}

// PathStyle reports whether requests use path style addressing
func (c *S3Config) PathStyle() bool {
	return c.ForcePathStyle != nil && *c.ForcePathStyle
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if c.Provider != ProviderAWS && c.AccessKey == "" {
		return fmt.Errorf("access_key required for provider %q", c.Provider)
	}
	switch c.Provider {
	case ProviderR2:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint required for r2 (https://<account-id>.r2.cloudflarestorage.com)")
		}
	case ProviderMinio, ProviderGeneric:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint required for provider %q", c.Provider)
		}
	}
	if c.Endpoint != "" && !utils.IsValidURL(c.Endpoint) {
		return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
	}
	return nil
}
