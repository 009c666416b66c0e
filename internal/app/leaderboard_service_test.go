package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func completedAttempt(id, userID int64, pct float64, duration int, at time.Time) domain.Attempt {
	return domain.Attempt{
		ID:              id,
		UserID:          userID,
		QuizID:          1,
		Status:          domain.AttemptCompleted,
		PercentageScore: pct,
		DurationSeconds: duration,
		IsValid:         true,
		StartedAt:       at.Add(-time.Duration(duration) * time.Second),
		SubmittedAt:     &at,
	}
}

func TestRankEntriesOrdering(t *testing.T) {
	base := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	attempts := []domain.Attempt{
		completedAttempt(1, 10, 80, 120, base),
		completedAttempt(2, 11, 90, 300, base),
		completedAttempt(3, 12, 80, 60, base.Add(time.Minute)),
		completedAttempt(4, 13, 80, 60, base),
		// a user's best attempt is the one ranked
		completedAttempt(5, 10, 95, 400, base.Add(time.Hour)),
	}
	invalid := completedAttempt(6, 14, 100, 10, base)
	invalid.IsValid = false
	open := domain.Attempt{ID: 7, UserID: 15, QuizID: 1, Status: domain.AttemptInProgress, IsValid: true, StartedAt: base}
	attempts = append(attempts, invalid, open)

	entries := app.RankEntries(attempts)
	require.Len(t, entries, 4)

	var users []int64
	for i, e := range entries {
		assert.Equal(t, i+1, e.Rank)
		users = append(users, e.UserID)
	}
	// 95 > 90 > 80 (60s, earlier) > 80 (60s, later)
	assert.Equal(t, []int64{10, 11, 13, 12}, users)
	assert.Equal(t, int64(5), entries[0].AttemptID)
}

func TestLeaderboardPipeline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	alice, aliceActor := e.user("alice", domain.RoleStudent)
	bob, bobActor := e.user("bob", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Race"},
		singleSelect("2 + 2?", "4", "3"),
		singleSelect("3 + 3?", "6", "5"))

	updates, cancel, err := e.leaderboard.Subscribe(ctx, quiz.ID)
	require.NoError(t, err)
	defer cancel()
	snapshot := <-updates
	assert.Empty(t, snapshot.Entries)

	for _, tc := range []struct {
		actor app.Actor
		right bool
	}{{aliceActor, false}, {bobActor, true}} {
		sheet, err := e.attempts.Start(ctx, tc.actor, quiz.ID)
		require.NoError(t, err)
		_, err = e.attempts.Submit(ctx, tc.actor, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, tc.right)})
		require.NoError(t, err)
	}
	e.drain()

	board, err := e.leaderboard.Top(ctx, quiz.ID, 10)
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, bob.ID, board.Entries[0].UserID)
	assert.Equal(t, "bob", board.Entries[0].DisplayName)
	assert.Equal(t, alice.ID, board.Entries[1].UserID)

	rank, err := e.leaderboard.Rank(ctx, quiz.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rank.Rank)

	_, err = e.leaderboard.Rank(ctx, quiz.ID, owner.UserID)
	assert.True(t, errors.Is(err, domain.ErrNotRanked), "got %v", err)

	select {
	case live := <-updates:
		assert.NotEmpty(t, live.Entries)
	case <-time.After(time.Second):
		t.Fatalf("expected a live leaderboard update")
	}
}

func TestLeaderboardUnknownQuiz(t *testing.T) {
	e := newEnv(t)
	_, err := e.leaderboard.Top(context.Background(), 404, 10)
	assert.True(t, errors.Is(err, domain.ErrQuizNotFound), "got %v", err)
}
