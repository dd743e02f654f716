package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-live/internal/config"
)

// ViolationLimiter throttles violation reports per attempt with a Redis
// fixed one-second window. It only sheds floods; it is not part of the
// counting invariant, which PostgreSQL owns.
type ViolationLimiter struct {
	rdb   *redis.Client
	limit int
}

// NewViolationLimiter creates a limiter allowing limit reports per second per
// attempt. A nil client or non-positive limit disables it.
func NewViolationLimiter(rdb *redis.Client, limit int) *ViolationLimiter {
	return &ViolationLimiter{rdb: rdb, limit: limit}
}

// Allow reports whether one more report fits in the current window.
func (l *ViolationLimiter) Allow(ctx context.Context, attemptID uuid.UUID) (bool, error) {
	if l == nil || l.rdb == nil || l.limit <= 0 {
		return true, nil
	}

	key := config.CacheKey.AttemptViolationWindowKey(attemptID.String(), time.Now().Unix())
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}
