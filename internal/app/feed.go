package app

import (
	"sync"
	"time"

	"quiz-platform/internal/domain"
)

// FeedRegistry abstracts where live leaderboard feeds are kept (in-memory, Redis-marked, etc).
type FeedRegistry interface {
	GetOrCreate(quizID int64) *Feed
	Get(quizID int64) (*Feed, bool)
	DeleteIfEmpty(quizID int64)
}

// Feed fans leaderboard snapshots of one quiz out to live subscribers.
type Feed struct {
	quizID      int64
	now         func() time.Time
	mu          sync.RWMutex
	current     domain.Leaderboard
	primed      bool
	subscribers map[chan domain.Leaderboard]struct{}
}

// NewFeed is exported for infrastructure layers that keep feeds.
func NewFeed(quizID int64) *Feed {
	return NewFeedWithClock(quizID, time.Now)
}

// NewFeedWithClock is test-only for deterministic timestamps.
func NewFeedWithClock(quizID int64, now func() time.Time) *Feed {
	return &Feed{
		quizID:      quizID,
		now:         now,
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// Publish replaces the current snapshot and pushes it to every subscriber.
func (f *Feed) Publish(entries []domain.LeaderboardEntry) domain.Leaderboard {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = domain.Leaderboard{
		QuizID:    f.quizID,
		Entries:   append([]domain.LeaderboardEntry(nil), entries...),
		UpdatedAt: f.now(),
	}
	f.primed = true
	return f.broadcastLocked()
}

// Snapshot returns the last published leaderboard, if any.
func (f *Feed) Snapshot() (domain.Leaderboard, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, f.primed
}

// Subscribe returns a channel of leaderboard updates. The current snapshot, when there is one,
// is delivered first. The caller must invoke cancel to avoid leaks.
func (f *Feed) Subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	if f.primed {
		ch <- f.current
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// IsEmpty reports whether the feed has no subscribers.
func (f *Feed) IsEmpty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) == 0
}

func (f *Feed) broadcastLocked() domain.Leaderboard {
	lb := f.current
	for ch := range f.subscribers {
		select {
		case ch <- lb:
		default:
			// slow subscriber: drop its oldest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return lb
}
