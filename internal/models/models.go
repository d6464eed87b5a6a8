package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	Roles        []string  `json:"roles,omitempty"`
}

type RefreshToken struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	TokenHash string     `json:"-" db:"token_hash"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// Modality is the kind of consultation artifact that was uploaded.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityAudio, ModalityVideo:
		return true
	}
	return false
}

// Status is the consultation lifecycle state. Transitions are one-way:
// pending -> processing -> completed|failed. Nothing leaves a terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Consultation is one submitted analysis unit of work. The pipeline is its
// only writer after creation; everything else reads.
type Consultation struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Title           string     `json:"title"`
	FileName        string     `json:"file_name"`
	FileKey         string     `json:"file_key"`
	FileType        Modality   `json:"file_type"`
	Status          Status     `json:"status"`
	OriginalContent *string    `json:"original_content,omitempty"`
	AnalysisResult  *string    `json:"analysis_result,omitempty"`
	ArchivedURL     *string    `json:"archived_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ConsultationFilter narrows list queries. Zero values mean "no constraint".
type ConsultationFilter struct {
	Title       string
	Status      Status
	FileType    Modality
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// KPIStats aggregates consultation counts for the admin dashboard.
type KPIStats struct {
	Total                int64   `json:"total"`
	Pending              int64   `json:"pending"`
	Processing           int64   `json:"processing"`
	Completed            int64   `json:"completed"`
	Failed               int64   `json:"failed"`
	CompletedLast7Days   int64   `json:"completed_last_7_days"`
	AvgProcessingSeconds float64 `json:"avg_processing_seconds"`
}
