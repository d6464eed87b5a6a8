package memq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/as950118/customer-service-coaching/internal/job"
	"github.com/google/uuid"
)

func TestEnqueue_SetsDefaults(t *testing.T) {
	q := NewMemoryQueue(10, 50*time.Millisecond)
	j := &job.Job{Type: job.TypeConsultationAnalyze, ConsultationID: uuid.New()}

	id, err := q.Enqueue(context.Background(), j)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("expected non-nil id")
	}
	if j.Status != job.StatusQueued {
		t.Fatalf("expected status queued, got %s", j.Status)
	}
	if j.Enqueued.IsZero() {
		t.Fatalf("expected enqueued timestamp to be set")
	}

	st, ok := q.Status(context.Background(), id)
	if !ok || st == nil {
		t.Fatalf("expected to find job by id")
	}
	if st.ConsultationID != j.ConsultationID {
		t.Fatalf("expected stored consultation id to match")
	}
}

func TestStartConsumers_SucceedsAndUpdatesStatus(t *testing.T) {
	q := NewMemoryQueue(10, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{}, 1)
	q.StartConsumers(ctx, 1, func(ctx context.Context, j *job.Job) error {
		done <- struct{}{}
		return nil
	})

	j := &job.Job{Type: job.TypeConsultationAnalyze, ConsultationID: uuid.New()}
	id, err := q.Enqueue(context.Background(), j)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for job handler")
	}

	st := waitTerminal(t, q, id)
	if st.Status != job.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (err=%s)", st.Status, st.Error)
	}
	if st.Started == nil || st.Finished == nil {
		t.Fatalf("expected started/finished timestamps to be set")
	}
}

// waitTerminal polls until the worker finishes its bookkeeping, which
// happens just after the handler returns.
func waitTerminal(t *testing.T, q JobQueue, id uuid.UUID) *job.Job {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st, ok := q.Status(context.Background(), id)
		if ok && (st.Status == job.StatusSucceeded || st.Status == job.StatusFailed) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal queue status", id)
	return nil
}

func TestStartConsumers_TimeoutMarksFailed(t *testing.T) {
	q := NewMemoryQueue(10, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{}, 1)
	q.StartConsumers(ctx, 1, func(ctx context.Context, j *job.Job) error {
		<-ctx.Done()
		done <- struct{}{}
		return errors.New("handler timed out")
	})

	j := &job.Job{Type: job.TypeConsultationAnalyze, ConsultationID: uuid.New()}
	id, err := q.Enqueue(context.Background(), j)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for job handler")
	}

	st := waitTerminal(t, q, id)
	if st.Status != job.StatusFailed {
		t.Fatalf("expected failed, got %s", st.Status)
	}
	if st.Error == "" {
		t.Fatalf("expected error message to be set")
	}
}
