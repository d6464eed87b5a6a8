package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/as950118/customer-service-coaching/internal/common"
)

type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: baseURL,
	}, nil
}

func (s *LocalStorage) UploadFile(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read file content: %w", err)
	}

	key := s.generateKey(filename)
	filePath := filepath.Join(s.baseDir, key)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory structure: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	url := fmt.Sprintf("%s/%s", s.baseURL, key)

	slog.Info("file uploaded to local storage", "key", key, "path", filePath, "size", len(data))

	return &UploadResult{
		Key: key,
		URL: url,
	}, nil
}

// GetPresignedURL returns the direct URL; local files do not expire.
func (s *LocalStorage) GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, key)
	return url, nil
}

func (s *LocalStorage) DeleteFile(ctx context.Context, key string) error {
	filePath := filepath.Join(s.baseDir, key)

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	slog.Info("file deleted from local storage", "key", key, "path", filePath)
	return nil
}

func (s *LocalStorage) GetFile(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath := filepath.Join(s.baseDir, key)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: %s", common.ErrFileNotFound, key)
		}
		return nil, "", fmt.Errorf("failed to stat file: %w", err)
	}

	// sniff the content type; uploads keep the caller's filename but the
	// bytes decide what the file actually is
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(filePath); err == nil {
		contentType = mt.String()
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	slog.Debug("file opened from local storage", "key", key, "content_type", contentType)

	return file, contentType, nil
}

func (s *LocalStorage) generateKey(filename string) string {
	ext := filepath.Ext(filename)
	basename := filepath.Base(filename[:len(filename)-len(ext)])

	timestamp := time.Now().Format("2006/01/02")
	uniqueID := uuid.New().String()[:8]

	return fmt.Sprintf("consultations/%s/%s_%s%s", timestamp, basename, uniqueID, ext)
}
