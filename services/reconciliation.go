package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const reconciliationQueueKey = "reconciliation:pending"

// ReconciliationTask records a failed seat-release compensation: the
// inventory is under-counting until an operator (or a retry) returns
// the spots. No automatic repair is possible without an audit pass, so
// the task must never be silently dropped.
type ReconciliationTask struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	Spots     int       `json:"spots"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type ReconciliationQueue struct {
	Redis *redis.Client
}

func NewReconciliationQueue(redisClient *redis.Client) *ReconciliationQueue {
	return &ReconciliationQueue{Redis: redisClient}
}

// Enqueue pushes a task onto the pending list. Losing the task would
// hide an inventory drift, so a push failure is logged loudly with the
// full task payload as the fallback audit trail.
func (q *ReconciliationQueue) Enqueue(ctx context.Context, task ReconciliationTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal reconciliation task: %w", err)
	}

	if err := q.Redis.LPush(ctx, reconciliationQueueKey, data).Err(); err != nil {
		slog.Error("failed to enqueue reconciliation task, manual repair required",
			"event_id", task.EventID,
			"user_id", task.UserID,
			"spots", task.Spots,
			"reason", task.Reason,
			"error", err,
		)
		return fmt.Errorf("enqueue reconciliation task: %w", err)
	}
	return nil
}

// Pending returns the queued tasks, newest first.
func (q *ReconciliationQueue) Pending(ctx context.Context) ([]ReconciliationTask, error) {
	entries, err := q.Redis.LRange(ctx, reconciliationQueueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list reconciliation tasks: %w", err)
	}

	tasks := make([]ReconciliationTask, 0, len(entries))
	for _, entry := range entries {
		var task ReconciliationTask
		if err := json.Unmarshal([]byte(entry), &task); err != nil {
			slog.Error("skipping malformed reconciliation entry", "entry", entry, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Resolve removes a task from the list after its seats were returned.
func (q *ReconciliationQueue) Resolve(ctx context.Context, task ReconciliationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal reconciliation task: %w", err)
	}
	if err := q.Redis.LRem(ctx, reconciliationQueueKey, 1, data).Err(); err != nil {
		return fmt.Errorf("resolve reconciliation task: %w", err)
	}
	return nil
}

// Size reports the number of pending tasks for monitoring.
func (q *ReconciliationQueue) Size(ctx context.Context) (int64, error) {
	return q.Redis.LLen(ctx, reconciliationQueueKey).Result()
}
