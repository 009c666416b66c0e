package app

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// DefaultFeedSize is how many entries live subscribers receive.
const DefaultFeedSize = 10

// LeaderboardService ranks the best valid attempt of every user on a quiz.
type LeaderboardService struct {
	attempts AttemptRepository
	users    UserRepository
	quizzes  QuizSource
	store    LeaderboardStore
	feeds    FeedRegistry
	feedSize int
}

func NewLeaderboardService(attempts AttemptRepository, users UserRepository, quizzes QuizSource, store LeaderboardStore, feeds FeedRegistry) *LeaderboardService {
	return &LeaderboardService{
		attempts: attempts,
		users:    users,
		quizzes:  quizzes,
		store:    store,
		feeds:    feeds,
		feedSize: DefaultFeedSize,
	}
}

// Rebuild recomputes a quiz leaderboard from completed valid attempts, stores it and
// pushes the top entries to live subscribers. It is safe to run repeatedly.
func (s *LeaderboardService) Rebuild(ctx context.Context, quizID int64) ([]domain.LeaderboardEntry, error) {
	attempts, err := s.attempts.CompletedAttempts(ctx, quizID, true)
	if err != nil {
		return nil, errors.Wrap(err, "load completed attempts")
	}

	entries := RankEntries(attempts)
	for i := range entries {
		entries[i].DisplayName = s.displayName(ctx, entries[i].UserID)
	}

	if err := s.store.ReplaceLeaderboard(ctx, quizID, entries); err != nil {
		return nil, errors.Wrap(err, "store leaderboard")
	}

	if feed, ok := s.feeds.Get(quizID); ok {
		feed.Publish(head(entries, s.feedSize))
	}
	return entries, nil
}

// RebuildAll rebuilds every quiz leaderboard that has completed attempts.
func (s *LeaderboardService) RebuildAll(ctx context.Context) (int, error) {
	ids, err := s.attempts.QuizzesWithCompletions(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list ranked quizzes")
	}
	for i, id := range ids {
		if _, err := s.Rebuild(ctx, id); err != nil {
			return i, errors.Wrapf(err, "rebuild quiz %d", id)
		}
	}
	return len(ids), nil
}

// Top returns the first limit entries of a quiz leaderboard.
func (s *LeaderboardService) Top(ctx context.Context, quizID int64, limit int) (domain.Leaderboard, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Leaderboard{}, err
	}
	if limit <= 0 || limit > domain.MaxPerPage {
		limit = s.feedSize
	}
	entries, err := s.store.TopEntries(ctx, quizID, limit)
	if err != nil {
		return domain.Leaderboard{}, errors.Wrap(err, "read leaderboard")
	}
	return domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: time.Now()}, nil
}

// Rank returns the caller's entry, or domain.ErrNotRanked.
func (s *LeaderboardService) Rank(ctx context.Context, quizID, userID int64) (domain.LeaderboardEntry, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.LeaderboardEntry{}, err
	}
	return s.store.EntryFor(ctx, quizID, userID)
}

// Subscribe returns a channel receiving leaderboard updates for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LeaderboardService) Subscribe(ctx context.Context, quizID int64) (<-chan domain.Leaderboard, func(), error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, nil, err
	}

	feed := s.feeds.GetOrCreate(quizID)
	if _, primed := feed.Snapshot(); !primed {
		entries, err := s.store.TopEntries(ctx, quizID, s.feedSize)
		if err != nil {
			s.feeds.DeleteIfEmpty(quizID)
			return nil, nil, errors.Wrap(err, "read leaderboard")
		}
		feed.Publish(entries)
	}

	ch, cancel := feed.Subscribe()
	return ch, func() {
		cancel()
		s.feeds.DeleteIfEmpty(quizID)
	}, nil
}

func (s *LeaderboardService) displayName(ctx context.Context, userID int64) string {
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return "user-" + strconv.FormatInt(userID, 10)
	}
	return u.DisplayName()
}

// RankEntries keeps each user's best attempt and ranks them: highest percentage first,
// then shortest duration, then earliest completion.
func RankEntries(attempts []domain.Attempt) []domain.LeaderboardEntry {
	best := make(map[int64]domain.Attempt)
	for _, a := range attempts {
		if !a.Completed() || !a.IsValid {
			continue
		}
		cur, ok := best[a.UserID]
		if !ok || betterAttempt(a, cur) {
			best[a.UserID] = a
		}
	}

	ranked := make([]domain.Attempt, 0, len(best))
	for _, a := range best {
		ranked = append(ranked, a)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if betterAttempt(ranked[i], ranked[j]) {
			return true
		}
		if betterAttempt(ranked[j], ranked[i]) {
			return false
		}
		return ranked[i].UserID < ranked[j].UserID
	})

	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, a := range ranked {
		entries[i] = domain.LeaderboardEntry{
			Rank:            i + 1,
			UserID:          a.UserID,
			PercentageScore: a.PercentageScore,
			DurationSeconds: a.DurationSeconds,
			AttemptID:       a.ID,
			CompletedAt:     completedAt(a),
		}
	}
	return entries
}

func betterAttempt(a, b domain.Attempt) bool {
	if a.PercentageScore != b.PercentageScore {
		return a.PercentageScore > b.PercentageScore
	}
	if a.DurationSeconds != b.DurationSeconds {
		return a.DurationSeconds < b.DurationSeconds
	}
	return completedAt(a).Before(completedAt(b))
}

func completedAt(a domain.Attempt) time.Time {
	if a.SubmittedAt != nil {
		return *a.SubmittedAt
	}
	return a.StartedAt
}

func head(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	if n > 0 && len(entries) > n {
		return entries[:n]
	}
	return entries
}
