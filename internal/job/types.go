package job

import (
	"time"

	uuid "github.com/google/uuid"
)

type Type string

const (
	TypeConsultationAnalyze Type = "consultation_analyze"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is one unit of queue work. The queue-level status here tracks
// delivery only; the consultation record carries the user-visible state.
type Job struct {
	ID             uuid.UUID  `json:"id"`
	Type           Type       `json:"type"`
	ConsultationID uuid.UUID  `json:"consultation_id"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	Enqueued       time.Time  `json:"enqueued_at"`
	Started        *time.Time `json:"started_at,omitempty"`
	Finished       *time.Time `json:"finished_at,omitempty"`
}
