// Package s3 implements the export blob store on S3-compatible object
// storage. Snapshot rollback relies on bucket versioning, not on this
// package: the stable key is overwritten in place every successful run.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/saiteja-velpula/sagepick.core/export"
)

// Compile-time interface check.
var _ export.BlobStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store writes export artifacts into one bucket. The caller owns the S3
// client lifecycle.
type Store struct {
	client *awss3.Client
	bucket string
	logger *slog.Logger
}

// New creates a Store scoped to bucket.
func New(client *awss3.Client, bucket string, opts ...Option) *Store {
	s := &Store{client: client, bucket: bucket, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put uploads data under key as CSV, overwriting any existing object.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	out, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("sagepick/s3: put %s/%s: %w", s.bucket, key, err)
	}
	s.logger.Debug("object uploaded",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.String("version_id", aws.ToString(out.VersionId)),
	)
	return nil
}

// Exists reports whether key holds an object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("sagepick/s3: head %s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}
