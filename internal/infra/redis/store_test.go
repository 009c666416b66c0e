package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quiz-platform/internal/domain"
)

func TestLeaderboardReplaceAndRead(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	lb := NewLeaderboard(newClient(mr))
	ctx := context.Background()

	entries := []domain.LeaderboardEntry{
		{Rank: 1, UserID: 7, DisplayName: "Ann", PercentageScore: 100, DurationSeconds: 40},
		{Rank: 2, UserID: 3, DisplayName: "Bob", PercentageScore: 80, DurationSeconds: 30},
		{Rank: 3, UserID: 9, DisplayName: "Cid", PercentageScore: 80, DurationSeconds: 50},
	}
	if err := lb.ReplaceLeaderboard(ctx, 1, entries); err != nil {
		t.Fatalf("replace: %v", err)
	}

	top, err := lb.TopEntries(ctx, 1, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != 7 || top[1].UserID != 3 {
		t.Fatalf("unexpected top entries %+v", top)
	}

	e, err := lb.EntryFor(ctx, 1, 9)
	if err != nil || e.Rank != 3 {
		t.Fatalf("entry for user 9: %+v err=%v", e, err)
	}

	// a rebuild without user 9 must drop their entry
	if err := lb.ReplaceLeaderboard(ctx, 1, entries[:2]); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	if _, err := lb.EntryFor(ctx, 1, 9); !errors.Is(err, domain.ErrNotRanked) {
		t.Fatalf("expected ErrNotRanked, got %v", err)
	}

	empty, err := lb.TopEntries(ctx, 2, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty board, got %+v err=%v", empty, err)
	}
}

func TestTaskQueueAckAndRecover(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	q := NewTaskQueue(newClient(mr))
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		if err := q.Enqueue(ctx, domain.Task{Kind: domain.TaskAttemptCompleted, AttemptID: id}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	d, ok, err := q.Dequeue(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("dequeue: ok=%v err=%v", ok, err)
	}
	if d.Task.AttemptID != 1 {
		t.Fatalf("expected FIFO order, got %+v", d.Task)
	}
	if err := q.Ack(ctx, d); err != nil {
		t.Fatalf("ack: %v", err)
	}

	// take the second task and "crash" before acking
	if _, ok, _ := q.Dequeue(ctx, time.Second); !ok {
		t.Fatalf("expected second task")
	}
	n, err := q.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recover: n=%d err=%v", n, err)
	}
	d, ok, err = q.Dequeue(ctx, time.Second)
	if err != nil || !ok || d.Task.AttemptID != 2 {
		t.Fatalf("expected recovered task, got %+v ok=%v err=%v", d.Task, ok, err)
	}
}
