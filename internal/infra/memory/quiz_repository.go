package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizCache caches quizzes with TTL to avoid repeated store hits. Statistics
// writes go straight to the backing repository and evict the cached copy.
type QuizCache struct {
	next  app.QuizRepository
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
	// evictions counts Evict calls per quiz; a fill that raced one is dropped.
	evictions map[string]uint64
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizCache(next app.QuizRepository, ttl time.Duration) *QuizCache {
	return &QuizCache{
		next:  next,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuiz),

		evictions: make(map[string]uint64),
	}
}

func (r *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		if quiz, ok := r.lookup(quizID); ok {
			return quiz, nil
		}

		r.mu.RLock()
		generation := r.evictions[quizID]
		r.mu.RUnlock()

		quiz, err := r.next.GetQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		if r.evictions[quizID] == generation {
			r.cache[quizID] = cachedQuiz{
				quiz:      quiz,
				expiresAt: r.clock().Add(r.ttlWithJitter()),
			}
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizCache) RecordCompletion(ctx context.Context, quizID string, score float64, timeSpent int) (domain.QuizStats, error) {
	stats, err := r.next.RecordCompletion(ctx, quizID, score, timeSpent)
	r.Evict(quizID)
	return stats, err
}

// Evict drops a cached quiz.
func (r *QuizCache) Evict(quizID string) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.evictions[quizID]++
	r.mu.Unlock()
}

func (r *QuizCache) lookup(quizID string) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

func (r *QuizCache) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
