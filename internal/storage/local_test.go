package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/as950118/customer-service-coaching/internal/common"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	require.NoError(t, err)

	res, err := s.UploadFile(context.Background(), "상담 기록.txt", strings.NewReader("고객: 환불해 주세요"), "text/plain")
	require.NoError(t, err)
	assert.Contains(t, res.Key, "consultations/")
	assert.True(t, strings.HasSuffix(res.Key, ".txt"))

	rc, contentType, err := s.GetFile(context.Background(), res.Key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "고객: 환불해 주세요", string(data))
	assert.Contains(t, contentType, "text/plain")

	require.NoError(t, s.DeleteFile(context.Background(), res.Key))

	_, _, err = s.GetFile(context.Background(), res.Key)
	assert.True(t, errors.Is(err, common.ErrFileNotFound))
}

func TestLocalStorage_GetPresignedURL(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	require.NoError(t, err)

	url, err := s.GetPresignedURL(context.Background(), "consultations/2025/01/01/call_abcd1234.mp3", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/consultations/2025/01/01/call_abcd1234.mp3", url)
}

func TestLocalStorage_UniqueKeysForSameFilename(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/files")
	require.NoError(t, err)

	a, err := s.UploadFile(context.Background(), "call.mp3", strings.NewReader("aaa"), "audio/mpeg")
	require.NoError(t, err)
	b, err := s.UploadFile(context.Background(), "call.mp3", strings.NewReader("bbb"), "audio/mpeg")
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
}
