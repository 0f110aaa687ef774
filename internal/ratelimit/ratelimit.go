// Package ratelimit throttles credential-guessing endpoints with a Redis
// fixed-window counter. The limiter is shared-state on purpose: every
// instance of the service sees the same counts.
package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[ratelimit.NewRedisClient] ping")
	}
	return client, nil
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter counts hits per key per fixed window.
type Limiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

func NewLimiter(rdb *redis.Client, prefix string, limit int64, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow records a hit for key and reports whether it is within the limit.
// The first hit of a window sets the key's expiry; the window never slides.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	fullKey := l.prefix + ":" + key

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrap(err, "[Limiter.Allow] pipeline")
	}

	hits := count.Val()
	if hits > l.limit {
		ttl, err := l.rdb.TTL(ctx, fullKey).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - hits}, nil
}
