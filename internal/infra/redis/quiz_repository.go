package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizCache caches question-populated quizzes in Redis and falls back to the
// backing repository on a miss. Each quiz is stored as a JSON document:
//
//	SET quiz:{quizID} {json} EX ttl
//
// Statistics writes pass through, delete the cached document and bump
// quiz:{quizID}:version. A fill only writes if the version it read before
// loading is still current, so a load that raced a write is never cached.
type QuizCache struct {
	client *redis.Client
	next   app.QuizRepository
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizCache(client *redis.Client, next app.QuizRepository, ttl time.Duration, log *logger.Logger) *QuizCache {
	if log == nil {
		log = logger.Nop()
	}
	return &QuizCache{
		client: client,
		next:   next,
		ttl:    ttl,
		log:    log.With("component", "RedisQuizCache"),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.lookup(ctx, quizID); ok {
			return quiz, nil
		}

		version, versionErr := r.version(ctx, r.client, quizID)
		if versionErr != nil {
			r.log.Warn("Quiz cache version read failed", "quiz_id", quizID, "error", versionErr)
		}

		quiz, err := r.next.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		if ttl := r.ttlWithJitter(); ttl > 0 && versionErr == nil {
			if payload, err := json.Marshal(quiz); err == nil {
				if err := r.fill(ctx, quizID, version, payload, ttl); err != nil {
					r.log.Warn("Quiz cache write failed", "quiz_id", quizID, "error", err)
				}
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizCache) RecordCompletion(ctx context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error) {
	stats, err := r.next.RecordCompletion(ctx, quizID, score, timeSpent)
	_, evictErr := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.versionKey(quizID))
		pipe.Del(ctx, r.key(quizID))
		return nil
	})
	if evictErr != nil {
		r.log.Warn("Quiz cache evict failed", "quiz_id", quizID, "error", evictErr)
	}
	return stats, err
}

// fill stores payload unless the quiz version moved since it was read.
func (r *QuizCache) fill(ctx context.Context, quizID string, version int64, payload []byte, ttl time.Duration) error {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.version(ctx, tx, quizID)
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key(quizID), payload, ttl)
			return nil
		})
		return err
	}, r.versionKey(quizID))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *QuizCache) version(ctx context.Context, c getter, quizID string) (int64, error) {
	v, err := c.Get(ctx, r.versionKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (r *QuizCache) lookup(ctx context.Context, quizID string) (domain.Quiz, bool) {
	payload, err := r.client.Get(ctx, r.key(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("Quiz cache read failed", "quiz_id", quizID, "error", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(payload, &quiz); err != nil {
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizCache) key(quizID string) string {
	return "quiz:" + quizID
}

func (r *QuizCache) versionKey(quizID string) string {
	return "quiz:" + quizID + ":version"
}

func (r *QuizCache) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
