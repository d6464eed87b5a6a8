// Package storage abstracts where uploaded consultation files live:
// the local filesystem for development or S3 for production.
package storage

import (
	"context"
	"io"
	"time"
)

type Storage interface {
	UploadFile(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error)
	GetFile(ctx context.Context, key string) (io.ReadCloser, string, error)
	GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

type UploadResult struct {
	Key string
	URL string
}
