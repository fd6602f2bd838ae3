package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Config selects the bucket and key prefix for session records.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// S3 is a bucket-backed KV for server-side requesters that need
// session records shared across instances. Combine with Encrypted:
// records carry private session keys and must not land in a bucket in
// the clear.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an adapter from the ambient AWS configuration.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Get retrieves an object. A missing key is not an error.
func (c *S3) Get(ctx context.Context, key string) ([]byte, bool, error) {
	objectKey := c.prefix + key
	log.Debug().
		Str("bucket", c.bucket).
		Str("key", objectKey).
		Msg("S3 GET")

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("S3 GetObject failed: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, true, nil
}

// Set stores an object.
func (c *S3) Set(ctx context.Context, key string, value []byte) error {
	objectKey := c.prefix + key
	log.Debug().
		Str("bucket", c.bucket).
		Str("key", objectKey).
		Int("size", len(value)).
		Msg("S3 PUT")

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &c.bucket,
		Key:    &objectKey,
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject failed: %w", err)
	}
	return nil
}

// Remove deletes an object. S3 deletes are idempotent, so removing an
// absent key succeeds.
func (c *S3) Remove(ctx context.Context, key string) error {
	objectKey := c.prefix + key
	log.Debug().
		Str("bucket", c.bucket).
		Str("key", objectKey).
		Msg("S3 DELETE")

	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.bucket,
		Key:    &objectKey,
	})
	if err != nil {
		return fmt.Errorf("S3 DeleteObject failed: %w", err)
	}
	return nil
}
