package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/memory"
)

// QuizRepository caches full quizzes in Redis and falls back to a loader on cache miss.
// Quizzes are stored as JSON: SET quiz:{quizID}:content {json} EX ttl
// quiz:{quizID}:gen counts invalidations; a load is only written back if it is unchanged.
type QuizRepository struct {
	client *redis.Client
	loader memory.QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader memory.QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	gen := r.generation(ctx, quizID)
	key := strconv.FormatInt(quizID, 10) + ":" + strconv.FormatInt(gen, 10)
	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if ttl := r.ttlWithJitter(); ttl > 0 {
			raw, err := json.Marshal(quiz)
			if err == nil {
				// best effort: a failed write only costs another load
				_ = r.store(ctx, quizID, gen, raw, ttl)
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID int64) {
	_, _ = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey(quizID))
		pipe.Del(ctx, r.key(quizID))
		return nil
	})
}

// store writes the quiz unless an invalidation bumped the generation since gen was read.
func (r *QuizRepository) store(ctx context.Context, quizID, gen int64, raw []byte, ttl time.Duration) error {
	genKey := r.genKey(quizID)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(quizID), raw, ttl)
			return nil
		})
		return err
	}, genKey)
}

func (r *QuizRepository) generation(ctx context.Context, quizID int64) int64 {
	gen, err := r.client.Get(ctx, r.genKey(quizID)).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func (r *QuizRepository) cached(ctx context.Context, quizID int64) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.key(quizID)).Bytes()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(quizID int64) string {
	return fmt.Sprintf("quiz:%d:content", quizID)
}

func (r *QuizRepository) genKey(quizID int64) string {
	return fmt.Sprintf("quiz:%d:gen", quizID)
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
