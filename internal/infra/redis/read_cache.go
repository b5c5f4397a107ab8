package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

// ReadCache stores derived read models (leaderboards, per-user statistics)
// under short-lived keys:
//
//	quiz:leaderboard:{quizID}
//	user:stats:{userID}
//
// Failures are logged and treated as misses.
type ReadCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewReadCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *ReadCache {
	if log == nil {
		log = logger.Nop()
	}
	return &ReadCache{client: client, ttl: ttl, log: log.With("component", "RedisReadCache")}
}

func (c *ReadCache) GetLeaderboard(ctx context.Context, quizID string) (domain.Leaderboard, bool) {
	var lb domain.Leaderboard
	ok := c.get(ctx, leaderboardKey(quizID), &lb)
	return lb, ok
}

func (c *ReadCache) SetLeaderboard(ctx context.Context, lb domain.Leaderboard) {
	c.set(ctx, leaderboardKey(lb.QuizID), lb)
}

func (c *ReadCache) GetUserStatistics(ctx context.Context, userID string) (domain.UserStatistics, bool) {
	var stats domain.UserStatistics
	ok := c.get(ctx, userStatsKey(userID), &stats)
	return stats, ok
}

func (c *ReadCache) SetUserStatistics(ctx context.Context, userID string, stats domain.UserStatistics) {
	c.set(ctx, userStatsKey(userID), stats)
}

// Invalidate drops the read models a completed or abandoned attempt touches.
func (c *ReadCache) Invalidate(ctx context.Context, quizID, userID string) {
	if err := c.client.Del(ctx, leaderboardKey(quizID), userStatsKey(userID)).Err(); err != nil {
		c.log.Warn("Read cache invalidate failed", "quiz_id", quizID, "user_id", userID, "error", err)
	}
}

func (c *ReadCache) get(ctx context.Context, key string, dst any) bool {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Read cache get failed", "key", key, "error", err)
		}
		return false
	}
	return json.Unmarshal(payload, dst) == nil
}

func (c *ReadCache) set(ctx context.Context, key string, value any) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("Read cache set failed", "key", key, "error", err)
	}
}

func leaderboardKey(quizID string) string {
	return "quiz:leaderboard:" + quizID
}

func userStatsKey(userID string) string {
	return "user:stats:" + userID
}
