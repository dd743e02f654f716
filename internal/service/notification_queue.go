package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// NotificationQueue hands exam-created jobs to the notification worker.
type NotificationQueue struct {
	rdb *redis.Client
}

// NewNotificationQueue creates a new NotificationQueue. A nil client makes
// every enqueue a no-op.
func NewNotificationQueue(rdb *redis.Client) *NotificationQueue {
	return &NotificationQueue{rdb: rdb}
}

// EnqueueExamCreated pushes a job for the given exam.
func (q *NotificationQueue) EnqueueExamCreated(ctx context.Context, examID uuid.UUID) error {
	if q == nil || q.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(model.ExamCreatedJob{ExamID: examID})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.NotifyExamCreatedQueue, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}
