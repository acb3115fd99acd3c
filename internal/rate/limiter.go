package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	// Prefix namespaces counter keys, e.g. "rl:login:".
	Prefix      string
	MaxAttempts int
	Window      time.Duration
}

// Limiter enforces fixed-window attempt budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("rate: redis client is required")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, errors.New("rate: max attempts must be > 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("rate: window must be > 0")
	}
	return &Limiter{redis: redisClient, config: cfg}, nil
}

// Check reports whether key still has budget left without spending any.
func (l *Limiter) Check(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Hit spends one attempt for key and returns ErrRateLimited once the budget
// for the current window is exceeded.
func (l *Limiter) Hit(ctx context.Context, key string) error {
	count, err := l.incrementWithTTL(ctx, l.key(key))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for key. Called after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for key. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Window returns the configured window, suitable for a Retry-After header.
func (l *Limiter) Window() time.Duration {
	return l.config.Window
}

func (l *Limiter) key(k string) string {
	return l.config.Prefix + k
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
