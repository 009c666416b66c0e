package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-platform/internal/domain"
)

const (
	pendingTasksKey    = "tasks:pending"
	processingTasksKey = "tasks:processing"
)

// TaskQueue is a reliable Redis list queue: tasks move from the pending list to a
// processing list on dequeue and are removed from it on Ack.
type TaskQueue struct {
	client *redis.Client
}

func NewTaskQueue(client *redis.Client) *TaskQueue {
	return &TaskQueue{client: client}
}

func (q *TaskQueue) Enqueue(ctx context.Context, task domain.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, pendingTasksKey, raw).Err(); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

// Dequeue blocks up to wait for a task; ok is false on timeout.
func (q *TaskQueue) Dequeue(ctx context.Context, wait time.Duration) (domain.TaskDelivery, bool, error) {
	raw, err := q.client.BLMove(ctx, pendingTasksKey, processingTasksKey, "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return domain.TaskDelivery{}, false, nil
	}
	if err != nil {
		return domain.TaskDelivery{}, false, fmt.Errorf("dequeue task: %w", err)
	}
	var task domain.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// drop poison messages so they do not block the processing list
		_ = q.client.LRem(ctx, processingTasksKey, 1, raw).Err()
		return domain.TaskDelivery{}, false, fmt.Errorf("decode task: %w", err)
	}
	return domain.TaskDelivery{Task: task, Receipt: raw}, true, nil
}

func (q *TaskQueue) Ack(ctx context.Context, d domain.TaskDelivery) error {
	if err := q.client.LRem(ctx, processingTasksKey, 1, d.Receipt).Err(); err != nil {
		return fmt.Errorf("ack task: %w", err)
	}
	return nil
}

// Recover moves tasks left in the processing list by a crashed worker back to pending.
func (q *TaskQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, processingTasksKey, pendingTasksKey, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover tasks: %w", err)
		}
		n++
	}
}
