package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-platform/internal/app"
)

// FeedStore is a Redis-aware implementation of app.FeedRegistry.
// Notes:
//   - It keeps a local map of feeds to reuse the in-process broadcast logic.
//   - Redis marks which quizzes have live viewers; the markers expire on their
//     own if an instance dies without cleaning up.
type FeedStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	feeds  map[int64]*app.Feed
}

func NewFeedStore(client *redis.Client, ttl time.Duration) *FeedStore {
	return &FeedStore{
		client: client,
		ttl:    ttl,
		feeds:  make(map[int64]*app.Feed),
	}
}

func (s *FeedStore) GetOrCreate(quizID int64) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[quizID]; ok {
		// refresh liveness while viewers keep joining
		_ = s.client.Expire(context.Background(), s.key(quizID), s.ttl).Err()
		return feed
	}
	feed := app.NewFeed(quizID)
	s.feeds[quizID] = feed
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(quizID), "1", s.ttl).Err()
	return feed
}

func (s *FeedStore) Get(quizID int64) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[quizID]
	return feed, ok
}

func (s *FeedStore) DeleteIfEmpty(quizID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[quizID]
	if !ok {
		return
	}
	if feed.IsEmpty() {
		delete(s.feeds, quizID)
		_ = s.client.Del(context.Background(), s.key(quizID)).Err()
	}
}

func (s *FeedStore) key(quizID int64) string {
	return fmt.Sprintf("quiz:feed:%d", quizID)
}
