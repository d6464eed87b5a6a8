// Package progress watches a consultation and emits status events until
// it reaches a terminal state. The HTTP layer streams these as
// server-sent events.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/as950118/customer-service-coaching/internal/models"
)

// Event is one progress update. AnalysisResult is set only on the final
// event of a completed or failed consultation.
type Event struct {
	Type           string        `json:"type"`
	ConsultationID uuid.UUID     `json:"consultation_id"`
	Status         models.Status `json:"status"`
	AnalysisResult *string       `json:"analysis_result,omitempty"`
}

// Event types mirror the consultation status. Nothing is emitted while
// the record is still pending.
const (
	EventProcessing = "processing"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventError      = "error"
)

type Store interface {
	GetConsultationByID(ctx context.Context, id uuid.UUID) (*models.Consultation, error)
}

type Notifier struct {
	store    Store
	interval time.Duration
}

func NewNotifier(store Store, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = time.Second
	}
	return &Notifier{store: store, interval: interval}
}

// Watch polls the consultation and sends one event per observation,
// staying silent while the record is still pending. The channel closes
// after the first terminal event, or when ctx is done. An
// already-terminal consultation produces exactly one event.
func (n *Notifier) Watch(ctx context.Context, id uuid.UUID) <-chan Event {
	ch := make(chan Event)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(n.interval)
		defer ticker.Stop()

		for {
			c, err := n.store.GetConsultationByID(ctx, id)
			if err != nil {
				slog.Warn("progress poll failed", "consultation_id", id, "error", err)
				send(ctx, ch, Event{Type: EventError, ConsultationID: id})
				return
			}

			if c.Status.Terminal() {
				ev := Event{ConsultationID: id, Status: c.Status, AnalysisResult: c.AnalysisResult}
				if c.Status == models.StatusCompleted {
					ev.Type = EventCompleted
				} else {
					ev.Type = EventFailed
				}
				send(ctx, ch, ev)
				return
			}

			if c.Status == models.StatusProcessing {
				ev := Event{Type: EventProcessing, ConsultationID: id, Status: c.Status}
				if !send(ctx, ch, ev) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return ch
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- ev:
		return true
	}
}
