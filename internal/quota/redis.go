package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/studygate/internal/observability"
)

// RedisLimiter counts requests in Redis so replicas share one quota.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
}

// NewRedisClient creates a Redis client from quota settings.
func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewRedisLimiter creates a Redis-backed limiter. A limit <= 0 disables it.
func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		now:    time.Now,
	}
}

// CheckDailyLimit counts one request for userID.
// Redis failures let the request through.
func (l *RedisLimiter) CheckDailyLimit(ctx context.Context, userID string) error {
	if l.limit <= 0 {
		return nil
	}

	now := l.now()
	key := dayKey(userID, now)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, nextReset(now).Add(time.Hour))
		return nil
	})
	if err != nil {
		observability.FromContext(ctx).Warn("quota check failed, allowing request",
			observability.String("key", key),
			observability.Error(err))
		return nil
	}

	if int(incr.Val()) > l.limit {
		return exceeded(l.limit)
	}

	return nil
}
