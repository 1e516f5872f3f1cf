package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/LedgerFox/internal/pkg/env"
)

// Config holds the S3 settings of the raw webhook archive
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          strings.Trim(env.GetEnv("WEBHOOK_ARCHIVE_PREFIX", "webhooks"), "/"),
		Enabled:         env.GetEnv("WEBHOOK_ARCHIVE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the webhook archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the webhook archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the webhook archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey builds the key of an archived payload.
// Format: <prefix>/<provider>/<tenant>/YYYY/MM/DD/<id>.json
func (c *Config) ObjectKey(provider string, tenantID uint, id string, at time.Time) string {
	at = at.UTC()
	key := fmt.Sprintf("%s/%d/%04d/%02d/%02d/%s.json", provider, tenantID, at.Year(), int(at.Month()), at.Day(), id)
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + "/" + key
}
