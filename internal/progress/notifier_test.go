package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/as950118/customer-service-coaching/internal/models"
)

type scriptedStore struct {
	mu       sync.Mutex
	statuses []models.Status
	result   *string
	err      error
	calls    int
}

func (s *scriptedStore) GetConsultationByID(ctx context.Context, id uuid.UUID) (*models.Consultation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.statuses) {
		idx = len(s.statuses) - 1
	}
	c := &models.Consultation{ID: id, Status: s.statuses[idx]}
	if s.statuses[idx].Terminal() {
		c.AnalysisResult = s.result
	}
	return c, nil
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("watch did not terminate, got %d events", len(events))
		}
	}
}

func TestWatch_ProgressThenComplete(t *testing.T) {
	result := `{"overall_score":7}`
	store := &scriptedStore{
		statuses: []models.Status{models.StatusPending, models.StatusProcessing, models.StatusCompleted},
		result:   &result,
	}
	n := NewNotifier(store, time.Millisecond)

	events := collect(t, n.Watch(context.Background(), uuid.New()))

	// pending is silent; the stream carries processing then completed
	require.Len(t, events, 2)
	assert.Equal(t, EventProcessing, events[0].Type)
	assert.Equal(t, models.StatusProcessing, events[0].Status)
	assert.Equal(t, EventCompleted, events[1].Type)
	require.NotNil(t, events[1].AnalysisResult)
	assert.Equal(t, result, *events[1].AnalysisResult)
}

func TestWatch_PendingEmitsNothing(t *testing.T) {
	result := `{"overall_score":7}`
	store := &scriptedStore{
		statuses: []models.Status{models.StatusPending, models.StatusPending, models.StatusCompleted},
		result:   &result,
	}
	n := NewNotifier(store, time.Millisecond)

	events := collect(t, n.Watch(context.Background(), uuid.New()))

	require.Len(t, events, 1)
	assert.Equal(t, EventCompleted, events[0].Type)
	store.mu.Lock()
	assert.GreaterOrEqual(t, store.calls, 3)
	store.mu.Unlock()
}

func TestWatch_AlreadyTerminalEmitsOnce(t *testing.T) {
	diag := "❌ **분석 실패**\n\n에러: boom"
	store := &scriptedStore{statuses: []models.Status{models.StatusFailed}, result: &diag}
	n := NewNotifier(store, time.Millisecond)

	events := collect(t, n.Watch(context.Background(), uuid.New()))

	require.Len(t, events, 1)
	assert.Equal(t, EventFailed, events[0].Type)
	require.NotNil(t, events[0].AnalysisResult)
	assert.Equal(t, diag, *events[0].AnalysisResult)
}

func TestWatch_ContextCancelStopsStream(t *testing.T) {
	store := &scriptedStore{statuses: []models.Status{models.StatusProcessing}}
	n := NewNotifier(store, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	ch := n.Watch(ctx, uuid.New())

	<-ch
	cancel()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestWatch_StoreErrorEmitsErrorEvent(t *testing.T) {
	store := &scriptedStore{err: errors.New("db down")}
	n := NewNotifier(store, time.Millisecond)

	events := collect(t, n.Watch(context.Background(), uuid.New()))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}
