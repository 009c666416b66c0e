package memory

import (
	"context"
	"sync"

	"quiz-platform/internal/domain"
)

// Leaderboard keeps ranked entries per quiz in memory.
type Leaderboard struct {
	mu     sync.RWMutex
	boards map[int64][]domain.LeaderboardEntry
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{boards: make(map[int64][]domain.LeaderboardEntry)}
}

func (l *Leaderboard) ReplaceLeaderboard(_ context.Context, quizID int64, entries []domain.LeaderboardEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.boards[quizID] = append([]domain.LeaderboardEntry(nil), entries...)
	return nil
}

func (l *Leaderboard) TopEntries(_ context.Context, quizID int64, limit int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := l.boards[quizID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]domain.LeaderboardEntry{}, entries...), nil
}

func (l *Leaderboard) EntryFor(_ context.Context, quizID, userID int64) (domain.LeaderboardEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.boards[quizID] {
		if e.UserID == userID {
			return e, nil
		}
	}
	return domain.LeaderboardEntry{}, domain.ErrNotRanked
}
