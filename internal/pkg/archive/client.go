package archive

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Record is one verified webhook body to archive.
type Record struct {
	TenantID       uint
	Provider       string
	IdempotencyKey string
	RequestID      string
	Body           []byte
	ReceivedAt     time.Time
}

// Archiver stores raw webhook bodies outside the database.
type Archiver interface {
	Archive(ctx context.Context, rec Record) (string, error)
}

// NoopArchiver discards records.
type NoopArchiver struct{}

func (NoopArchiver) Archive(ctx context.Context, rec Record) (string, error) { return "", nil }

// Client wraps the S3 client with archive-specific functionality
type Client struct {
	s3Client *s3.Client
	config   *Config
}

// NewClient creates a new S3 archive client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("webhook archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
	}

	if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.BucketName)}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.BucketName, err)
	}

	log.Infof("[Archive] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// Archive uploads the raw body and returns its object key
func (c *Client) Archive(ctx context.Context, rec Record) (string, error) {
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now()
	}
	key := c.config.ObjectKey(rec.Provider, rec.TenantID, uuid.NewString(), rec.ReceivedAt)

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(rec.Body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"tenant-id":       strconv.FormatUint(uint64(rec.TenantID), 10),
			"idempotency-key": rec.IdempotencyKey,
			"request-id":      rec.RequestID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive webhook to s3://%s/%s: %w", c.config.BucketName, key, err)
	}
	return key, nil
}

// NewFromEnv returns an S3 archiver when enabled, otherwise a no-op one.
func NewFromEnv(ctx context.Context) Archiver {
	cfg, err := LoadConfig()
	if err != nil {
		log.Errorf("[Archive] Invalid configuration, archive disabled: %v", err)
		return NoopArchiver{}
	}
	if !cfg.IsEnabled() {
		return NoopArchiver{}
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		log.Errorf("[Archive] %v, archive disabled", err)
		return NoopArchiver{}
	}
	return client
}
