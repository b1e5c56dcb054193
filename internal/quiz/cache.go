package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 10 * time.Minute

type CacheConfig struct {
	Provider Provider
	Redis    redis.UniversalClient
	Prefix   string
	TTL      time.Duration
}

// Cache is a read-through redis cache in front of a Provider. Concurrent misses for the same quiz
// are collapsed into one load. Join codes are not cached: a quiz can be deactivated at any time.
type Cache struct {
	provider Provider
	redis    redis.UniversalClient
	prefix   string
	ttl      time.Duration
	sf       singleflight.Group
}

func NewCache(c CacheConfig) *Cache {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Cache{
		provider: c.Provider,
		redis:    c.Redis,
		prefix:   c.Prefix,
		ttl:      ttl,
	}
}

func (c *Cache) GetQuiz(ctx context.Context, quizID string) (Quiz, error) {
	if q, ok := c.get(ctx, quizID); ok {
		return q, nil
	}

	v, err, _ := c.sf.Do(quizID, func() (any, error) {
		if q, ok := c.get(ctx, quizID); ok {
			return q, nil
		}

		q, err := c.provider.GetQuiz(ctx, quizID)
		if err != nil {
			return Quiz{}, err
		}

		c.set(ctx, q)
		return q, nil
	})
	if err != nil {
		return Quiz{}, err
	}

	return v.(Quiz), nil
}

func (c *Cache) FindByJoinCode(ctx context.Context, code string) (Quiz, error) {
	q, err := c.provider.FindByJoinCode(ctx, code)
	if err != nil {
		return Quiz{}, err
	}

	c.set(ctx, q)
	return q, nil
}

// Invalidate drops the cached copy of a quiz.
func (c *Cache) Invalidate(ctx context.Context, quizID string) error {
	if err := c.redis.Del(ctx, c.key(quizID)).Err(); err != nil {
		return fmt.Errorf("quiz: invalidate %s: %w", quizID, err)
	}

	return nil
}

// get treats every redis failure as a miss.
func (c *Cache) get(ctx context.Context, quizID string) (Quiz, bool) {
	b, err := c.redis.Get(ctx, c.key(quizID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return Quiz{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "quiz: cache get failed", "quiz_id", quizID, "error", err)
		return Quiz{}, false
	}

	var q Quiz
	if err := json.Unmarshal(b, &q); err != nil {
		slog.WarnContext(ctx, "quiz: cache entry corrupted", "quiz_id", quizID, "error", err)
		return Quiz{}, false
	}

	return q, true
}

func (c *Cache) set(ctx context.Context, q Quiz) {
	b, err := json.Marshal(q)
	if err != nil {
		slog.WarnContext(ctx, "quiz: marshal cache entry failed", "quiz_id", q.ID, "error", err)
		return
	}

	if err := c.redis.Set(ctx, c.key(q.ID), b, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "quiz: cache set failed", "quiz_id", q.ID, "error", err)
	}
}

func (c *Cache) key(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s", c.prefix, quizID)
}
