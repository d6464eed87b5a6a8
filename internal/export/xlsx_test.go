package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/as950118/customer-service-coaching/internal/models"
	"github.com/google/uuid"
)

func TestConsultationsXLSX(t *testing.T) {
	done := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	consultations := []models.Consultation{
		{
			ID:          uuid.New(),
			Title:       "환불 문의",
			FileName:    "call.mp3",
			FileType:    models.ModalityAudio,
			Status:      models.StatusCompleted,
			CreatedAt:   done.Add(-10 * time.Minute),
			CompletedAt: &done,
		},
		{
			ID:        uuid.New(),
			Title:     "배송 지연",
			FileName:  "chat.txt",
			FileType:  models.ModalityText,
			Status:    models.StatusPending,
			CreatedAt: done,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ConsultationsXLSX(consultations, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Consultations")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Title", rows[0][1])
	assert.Equal(t, "환불 문의", rows[1][1])
	assert.Equal(t, "completed", rows[1][4])
	assert.Equal(t, "2025-03-01 12:30:00", rows[1][6])
	assert.Equal(t, "배송 지연", rows[2][1])
	assert.Equal(t, "pending", rows[2][4])
}

func TestConsultationsXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ConsultationsXLSX(nil, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Consultations")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
