package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quiz-platform/internal/domain"
)

// Leaderboard stores ranked entries per quiz:
//
//	ZADD quiz:{quizID}:leaderboard {rank} {userID}
//	HSET quiz:{quizID}:leaderboard:entries {userID} {json entry}
//
// The sorted set score is the rank so ZRANGE returns entries in order.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

// ReplaceLeaderboard swaps the whole board atomically.
func (l *Leaderboard) ReplaceLeaderboard(ctx context.Context, quizID int64, entries []domain.LeaderboardEntry) error {
	zkey, hkey := l.keys(quizID)

	members := make([]redis.Z, 0, len(entries))
	fields := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		uid := strconv.FormatInt(e.UserID, 10)
		members = append(members, redis.Z{Score: float64(e.Rank), Member: uid})
		fields[uid] = raw
	}

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, zkey, hkey)
		if len(members) > 0 {
			pipe.ZAdd(ctx, zkey, members...)
			pipe.HSet(ctx, hkey, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace leaderboard: %w", err)
	}
	return nil
}

func (l *Leaderboard) TopEntries(ctx context.Context, quizID int64, limit int) ([]domain.LeaderboardEntry, error) {
	zkey, hkey := l.keys(quizID)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := l.client.ZRange(ctx, zkey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(ids))
	if len(ids) == 0 {
		return entries, nil
	}
	raws, err := l.client.HMGet(ctx, hkey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard entries: %w", err)
	}
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *Leaderboard) EntryFor(ctx context.Context, quizID, userID int64) (domain.LeaderboardEntry, error) {
	_, hkey := l.keys(quizID)
	raw, err := l.client.HGet(ctx, hkey, strconv.FormatInt(userID, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LeaderboardEntry{}, domain.ErrNotRanked
	}
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("read entry: %w", err)
	}
	var e domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	return e, nil
}

func (l *Leaderboard) keys(quizID int64) (string, string) {
	z := fmt.Sprintf("quiz:%d:leaderboard", quizID)
	return z, z + ":entries"
}
