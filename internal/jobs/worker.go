package jobs

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// MaxRetries is how many times a failed task is re-enqueued before it is dropped.
const MaxRetries = 3

// Queue is the consuming side of a task queue.
type Queue interface {
	Enqueue(ctx context.Context, task domain.Task) error
	Dequeue(ctx context.Context, wait time.Duration) (domain.TaskDelivery, bool, error)
	Ack(ctx context.Context, d domain.TaskDelivery) error
}

// recoverer is implemented by queues that can requeue work orphaned by a crashed process.
type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Handler processes one task.
type Handler interface {
	Handle(ctx context.Context, task domain.Task) error
}

// Worker drains a queue with a fixed number of goroutines.
type Worker struct {
	queue       Queue
	handler     Handler
	log         app.Logger
	concurrency int
	poll        time.Duration
	taskTimeout time.Duration
}

func NewWorker(queue Queue, handler Handler, concurrency int, log app.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		handler:     handler,
		log:         log,
		concurrency: concurrency,
		poll:        2 * time.Second,
		taskTimeout: time.Minute,
	}
}

// Run blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if r, ok := w.queue.(recoverer); ok {
		n, err := r.Recover(ctx)
		if err != nil {
			w.log.Error("recover orphaned tasks", "err", err)
		} else if n > 0 {
			w.log.Info("requeued orphaned tasks", "count", n)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for ctx.Err() == nil {
		d, ok, err := w.queue.Dequeue(ctx, w.poll)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error("dequeue task", "err", err)
			sleep(ctx, time.Second)
			continue
		}
		if !ok {
			continue
		}
		w.process(ctx, d)
	}
}

func (w *Worker) process(ctx context.Context, d domain.TaskDelivery) {
	task := d.Task
	tctx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	err := w.handler.Handle(tctx, task)
	cancel()

	if err != nil {
		if task.Tries < MaxRetries {
			task.Tries++
			w.log.Warn("task failed, retrying", "kind", task.Kind, "tries", task.Tries, "err", err)
			if qerr := w.queue.Enqueue(ctx, task); qerr != nil {
				w.log.Error("requeue task", "kind", task.Kind, "err", qerr)
			}
		} else {
			w.log.Error("task dropped after retries", "kind", task.Kind, "attempt", task.AttemptID,
				"quiz", task.QuizID, "course", task.CourseID, "err", err)
		}
	}
	if err := w.queue.Ack(ctx, d); err != nil {
		w.log.Error("ack task", "kind", task.Kind, "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
