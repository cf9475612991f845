package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOpTimeout bounds each limiter round trip so a slow Redis cannot
// stall the request path; callers fail open on the resulting error.
const redisOpTimeout = 2 * time.Second

// RedisRateLimiter implements sliding-window rate limiting on Redis sorted
// sets. Each bucket is one sorted set whose members are request timestamps
// in nanoseconds; a request is admitted when fewer than Limit members remain
// inside the window.
//
// All limiter instances sharing a Redis see the same counters, which is what
// makes the limits hold across replicas.
type RedisRateLimiter struct {
	client *redis.Client
}

// NewRedisRateLimiter creates a limiter backed by the given Redis URL
// (redis://[user:pass@]host:port/db). The connection is verified before
// returning.
func NewRedisRateLimiter(ctx context.Context, redisURL string) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRateLimiter{client: client}, nil
}

// Allow records the request in the bucket's window and reports whether it
// fit. The trim, count, and insert run in one pipeline round trip.
func (l *RedisRateLimiter) Allow(ctx context.Context, bucket Bucket) (*RateResult, error) {
	now := time.Now()
	windowStart := now.Add(-bucket.Window)
	key := bucket.Key()

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	var countCmd *redis.IntCmd

	_, err := l.client.Pipelined(opCtx, func(pipe redis.Pipeliner) error {
		// Drop entries that slid out of the window, count what is left,
		// then record this request. The set expires a minute after the
		// window so idle buckets clean themselves up.
		pipe.ZRemRangeByScore(opCtx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
		countCmd = pipe.ZCard(opCtx, key)
		pipe.ZAdd(opCtx, key, redis.Z{
			Score:  float64(now.UnixNano()),
			Member: now.UnixNano(),
		})
		pipe.Expire(opCtx, key, bucket.Window+time.Minute)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	// countCmd holds the window population before this request was added.
	count := int(countCmd.Val())

	result := &RateResult{
		Allowed:   count < bucket.Limit,
		Remaining: bucket.Limit - count - 1,
		ResetTime: now.Add(bucket.Window),
	}

	if result.Remaining < 0 {
		result.Remaining = 0
	}

	return result, nil
}

// Ping verifies Redis connectivity, for health reporting.
func (l *RedisRateLimiter) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := l.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

// Close releases the Redis connection pool.
func (l *RedisRateLimiter) Close() error {
	if err := l.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
