package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/blog-service/internal/domain"
)

// LoginLimiter tracks failed logins per email.
type LoginLimiter interface {
	// Blocked reports whether email is locked out.
	Blocked(ctx context.Context, email string) (bool, error)
	// RecordFailure counts a failed attempt.
	RecordFailure(ctx context.Context, email string) error
	// Reset clears the counter after a successful login.
	Reset(ctx context.Context, email string) error
}

// RedisLoginLimiter counts failures in Redis with a fixed window that starts
// at the first failure.
type RedisLoginLimiter struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
}

// NewRedisLoginLimiter builds a limiter. maxAttempts <= 0 disables lockout.
func NewRedisLoginLimiter(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisLoginLimiter {
	return &RedisLoginLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func loginFailureKey(email string) string {
	return "login:failures:" + domain.NormalizeEmail(email)
}

// Blocked implements LoginLimiter.
func (l *RedisLoginLimiter) Blocked(ctx context.Context, email string) (bool, error) {
	if l.maxAttempts <= 0 {
		return false, nil
	}
	val, err := l.client.Get(ctx, loginFailureKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return false, err
	}
	return count >= l.maxAttempts, nil
}

// RecordFailure implements LoginLimiter.
func (l *RedisLoginLimiter) RecordFailure(ctx context.Context, email string) error {
	if l.maxAttempts <= 0 {
		return nil
	}
	key := loginFailureKey(email)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return l.client.Expire(ctx, key, l.window).Err()
	}
	return nil
}

// Reset implements LoginLimiter.
func (l *RedisLoginLimiter) Reset(ctx context.Context, email string) error {
	return l.client.Del(ctx, loginFailureKey(email)).Err()
}

// NoopLoginLimiter never locks anyone out.
type NoopLoginLimiter struct{}

func (NoopLoginLimiter) Blocked(context.Context, string) (bool, error) { return false, nil }
func (NoopLoginLimiter) RecordFailure(context.Context, string) error   { return nil }
func (NoopLoginLimiter) Reset(context.Context, string) error           { return nil }
