package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// TriggerLimiter caps how often a sync may be started manually for one key.
type TriggerLimiter interface {
	// Allow consumes one trigger. When the limit is reached allowed is false and
	// retryAfter says when the next trigger will be accepted.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// UnlimitedTriggers accepts every trigger.
type UnlimitedTriggers struct{}

func (UnlimitedTriggers) Allow(context.Context, string) (bool, time.Duration, error) {
	return true, 0, nil
}

// RedisTriggerLimiter enforces perHour triggers per key with a GCRA limiter in Redis.
type RedisTriggerLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

// NewRedisTriggerLimiter creates a limiter. perHour must be positive.
func NewRedisTriggerLimiter(client redis.UniversalClient, prefix string, perHour int) *RedisTriggerLimiter {
	return &RedisTriggerLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerHour(perHour),
		prefix:  prefix,
	}
}

func (l *RedisTriggerLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := l.limiter.Allow(ctx, l.prefix+key, l.limit)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check sync trigger limit: %w", err)
	}
	if res.Allowed == 0 {
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}
