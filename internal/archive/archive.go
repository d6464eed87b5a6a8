// Package archive mirrors uploaded consultation files to a long-term
// bucket. Archival is best-effort: failures are logged and never block
// the analysis.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/as950118/customer-service-coaching/internal/config"
	"github.com/as950118/customer-service-coaching/internal/storage"
)

type Archiver struct {
	client *s3.Client
	bucket string
	region string
}

// New returns nil when archival is disabled; callers treat a nil
// Archiver as a no-op.
func New(ctx context.Context, cfg appconfig.Config) (*Archiver, error) {
	if !cfg.ArchiveEnabled {
		return nil, nil
	}

	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init archive client: %w", err)
	}

	slog.Info("archival enabled", "bucket", cfg.ArchiveBucket)
	return &Archiver{client: client, bucket: cfg.ArchiveBucket, region: cfg.S3Region}, nil
}

// Upload copies content under key and returns the public URL of the
// archived object.
func (a *Archiver) Upload(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read archive content: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive file: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
	slog.Info("file archived", "bucket", a.bucket, "key", key, "size", len(data))
	return url, nil
}
