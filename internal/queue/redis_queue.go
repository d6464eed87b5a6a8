package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/as950118/customer-service-coaching/internal/job"
	"github.com/as950118/customer-service-coaching/internal/memq"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements memq.JobQueue on Redis Streams. It exists so the
// analyze workers can run in separate processes from the API; delivery
// bookkeeping lives here, the consultation record stays the single
// source of truth for user-visible state.
type RedisQueue struct {
	client        *redis.Client
	stream        string
	group         string
	maxWait       time.Duration
	claimInterval time.Duration
	claimTimeout  time.Duration

	mu      sync.RWMutex
	jobs    map[uuid.UUID]*job.Job // local cache for status lookups
	wg      sync.WaitGroup
	closing chan struct{}
}

type RedisQueueConfig struct {
	Stream        string
	Group         string
	MaxJobTime    time.Duration
	ClaimInterval time.Duration
	ClaimTimeout  time.Duration
}

func DefaultConfig() RedisQueueConfig {
	return RedisQueueConfig{
		Stream:        "coaching:analyze",
		Group:         "workers",
		MaxJobTime:    10 * time.Minute,
		ClaimInterval: 30 * time.Second,
		ClaimTimeout:  15 * time.Minute,
	}
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		maxWait:       cfg.MaxJobTime,
		claimInterval: cfg.ClaimInterval,
		claimTimeout:  cfg.ClaimTimeout,
		jobs:          make(map[uuid.UUID]*job.Job),
		closing:       make(chan struct{}),
	}

	err := q.client.XGroupCreateMkStream(context.Background(), q.stream, q.group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	slog.Info("redis queue initialized", "stream", q.stream, "group", q.group)
	return q, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, j *job.Job) (uuid.UUID, error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	j.Status = job.StatusQueued
	j.Enqueued = time.Now()

	data, err := json.Marshal(j)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{
			"id":   j.ID.String(),
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to add job to stream: %w", err)
	}

	q.mu.Lock()
	q.jobs[j.ID] = j
	q.mu.Unlock()

	slog.Debug("job enqueued", "job_id", j.ID, "consultation_id", j.ConsultationID)
	return j.ID, nil
}

func (q *RedisQueue) Status(ctx context.Context, id uuid.UUID) (*job.Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	return j, ok
}

func (q *RedisQueue) Len() int {
	info, err := q.client.XInfoGroups(context.Background(), q.stream).Result()
	if err != nil {
		return 0
	}
	for _, g := range info {
		if g.Name == q.group {
			return int(g.Pending)
		}
	}
	return 0
}

func (q *RedisQueue) StartConsumers(ctx context.Context, n int, handler memq.JobHandler) {
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.consumer(ctx, i+1, handler)
	}

	q.wg.Add(1)
	go q.claimer(ctx, handler)

	slog.Info("started queue consumers", "count", n)
}

func (q *RedisQueue) consumer(ctx context.Context, workerID int, handler memq.JobHandler) {
	defer q.wg.Done()
	consumerName := fmt.Sprintf("worker-%d", workerID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closing:
			return
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumerName,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			slog.Error("failed to read from stream", "error", err, "worker", workerID)
			time.Sleep(time.Second) // backoff on error
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.processMessage(ctx, msg, handler, workerID)
			}
		}
	}
}

// claimer re-delivers messages whose consumer died before acking.
// This is delivery-level redelivery only; a consultation left in
// processing by a crashed worker is not rewritten here.
func (q *RedisQueue) claimer(ctx context.Context, handler memq.JobHandler) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closing:
			return
		case <-ticker.C:
			q.claimStuckMessages(ctx, handler)
		}
	}
}

func (q *RedisQueue) claimStuckMessages(ctx context.Context, handler memq.JobHandler) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()

	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("failed to get pending entries", "error", err)
		}
		return
	}

	for _, p := range pending {
		if p.Idle < q.claimTimeout {
			continue
		}

		msgs, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: "claimer",
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()

		if err != nil {
			slog.Error("failed to claim stuck message", "message_id", p.ID, "error", err)
			continue
		}

		for _, msg := range msgs {
			slog.Warn("reclaimed stuck message", "message_id", msg.ID, "idle_time", p.Idle, "retry_count", p.RetryCount)

			if p.RetryCount > 3 {
				q.moveToDeadLetter(ctx, msg, fmt.Sprintf("exceeded max deliveries: %d", p.RetryCount))
				continue
			}

			go q.processMessage(ctx, msg, handler, 0)
		}
	}
}

func (q *RedisQueue) processMessage(ctx context.Context, msg redis.XMessage, handler memq.JobHandler, workerID int) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		slog.Error("invalid message format", "message_id", msg.ID)
		q.ackMessage(ctx, msg.ID)
		return
	}

	var j job.Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		slog.Error("failed to unmarshal job", "message_id", msg.ID, "error", err)
		q.ackMessage(ctx, msg.ID)
		return
	}

	now := time.Now()
	j.Status = job.StatusRunning
	j.Started = &now

	q.mu.Lock()
	q.jobs[j.ID] = &j
	q.mu.Unlock()

	slog.Info("processing job", "job_id", j.ID, "consultation_id", j.ConsultationID, "worker", workerID)

	runCtx, cancel := context.WithTimeout(ctx, q.maxWait)
	err := handler(runCtx, &j)
	cancel()

	fin := time.Now()
	j.Finished = &fin

	if err != nil {
		j.Status = job.StatusFailed
		j.Error = err.Error()
		slog.Error("job failed", "job_id", j.ID, "error", err, "worker", workerID)
	} else {
		j.Status = job.StatusSucceeded
		slog.Info("job completed", "job_id", j.ID, "worker", workerID, "duration", fin.Sub(*j.Started))
	}

	q.mu.Lock()
	q.jobs[j.ID] = &j
	q.mu.Unlock()

	q.ackMessage(ctx, msg.ID)
}

func (q *RedisQueue) moveToDeadLetter(ctx context.Context, msg redis.XMessage, reason string) {
	dlStream := q.stream + ":deadletter"

	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlStream,
		Values: map[string]any{
			"original_id": msg.ID,
			"data":        msg.Values["data"],
			"reason":      reason,
			"moved_at":    time.Now().Format(time.RFC3339),
		},
	}).Result()

	if err != nil {
		slog.Error("failed to move to dead letter", "message_id", msg.ID, "error", err)
	} else {
		slog.Warn("moved message to dead letter stream", "message_id", msg.ID, "reason", reason)
	}

	q.ackMessage(ctx, msg.ID)
}

func (q *RedisQueue) ackMessage(ctx context.Context, messageID string) {
	if err := q.client.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		slog.Error("failed to ack message", "message_id", messageID, "error", err)
	}
}

func (q *RedisQueue) Close() error {
	close(q.closing)
	q.wg.Wait()
	slog.Info("queue closed gracefully")
	return nil
}

func isGroupExistsError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
