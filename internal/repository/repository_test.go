package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/as950118/customer-service-coaching/internal/models"
)

func TestBuildConsultationListQuery_NoFilter(t *testing.T) {
	query, args := buildConsultationListQuery(nil, models.ConsultationFilter{})

	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY created_at DESC")
	assert.Empty(t, args)
}

func TestBuildConsultationListQuery_OwnerOnly(t *testing.T) {
	id := uuid.New()
	query, args := buildConsultationListQuery(&id, models.ConsultationFilter{})

	assert.Contains(t, query, "user_id = $1")
	require.Len(t, args, 1)
	assert.Equal(t, id, args[0])
}

func TestBuildConsultationListQuery_AllFilters(t *testing.T) {
	id := uuid.New()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	filter := models.ConsultationFilter{
		Title:       "환불",
		Status:      models.StatusCompleted,
		FileType:    models.ModalityAudio,
		CreatedFrom: &from,
		CreatedTo:   &to,
	}

	query, args := buildConsultationListQuery(&id, filter)

	assert.Contains(t, query, "user_id = $1")
	assert.Contains(t, query, "title ILIKE $2")
	assert.Contains(t, query, "status = $3")
	assert.Contains(t, query, "file_type = $4")
	assert.Contains(t, query, "created_at >= $5")
	assert.Contains(t, query, "created_at <= $6")
	require.Len(t, args, 6)
	assert.Equal(t, "%환불%", args[1])
	assert.Equal(t, models.StatusCompleted, args[2])
	assert.Equal(t, from, args[4])
}

func TestBuildConsultationListQuery_PlaceholdersSequential(t *testing.T) {
	filter := models.ConsultationFilter{Status: models.StatusFailed, Title: "net"}
	query, args := buildConsultationListQuery(nil, filter)

	require.Len(t, args, 2)
	// conditions appear in declaration order with placeholders counting up
	assert.Less(t, strings.Index(query, "$1"), strings.Index(query, "$2"))
	assert.Contains(t, query, "title ILIKE $1")
	assert.Contains(t, query, "status = $2")
}

func TestHashRefreshToken_Deterministic(t *testing.T) {
	r := &Repository{}

	a := r.HashRefreshToken("token-value")
	b := r.HashRefreshToken("token-value")
	c := r.HashRefreshToken("other-token")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestPasswordHashing(t *testing.T) {
	r := &Repository{}

	hash, err := r.HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.True(t, r.CheckPassword("s3cret-pass", hash))
	assert.False(t, r.CheckPassword("wrong", hash))
}
