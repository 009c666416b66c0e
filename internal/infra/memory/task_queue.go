package memory

import (
	"context"
	"time"

	"quiz-platform/internal/domain"
)

// DefaultQueueSize bounds the in-process task queue.
const DefaultQueueSize = 1024

// TaskQueue is an in-process task queue. Tasks are lost when the process exits.
type TaskQueue struct {
	tasks chan domain.Task
}

func NewTaskQueue(size int) *TaskQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &TaskQueue{tasks: make(chan domain.Task, size)}
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *TaskQueue) Enqueue(ctx context.Context, task domain.Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue waits up to wait for a task; ok is false on timeout.
func (q *TaskQueue) Dequeue(ctx context.Context, wait time.Duration) (domain.TaskDelivery, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case task := <-q.tasks:
		return domain.TaskDelivery{Task: task}, true, nil
	case <-timer.C:
		return domain.TaskDelivery{}, false, nil
	case <-ctx.Done():
		return domain.TaskDelivery{}, false, ctx.Err()
	}
}

// Ack is a no-op: a dequeued task is already gone from the channel.
func (q *TaskQueue) Ack(context.Context, domain.TaskDelivery) error { return nil }

// Len reports the number of waiting tasks.
func (q *TaskQueue) Len() int { return len(q.tasks) }
