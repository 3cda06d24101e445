package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockoutKeyPrefix = "auth:lockout:"

	DefaultMaxAttempts   = 5
	DefaultLockoutWindow = 15 * time.Minute
)

// RedisLoginThrottle counts failed logins per identifier in a Redis hash and
// locks the identifier once MaxAttempts is reached.
type RedisLoginThrottle struct {
	client      redis.Cmdable
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewRedisLoginThrottle creates a throttle. Non positive values fall back to
// the defaults.
func NewRedisLoginThrottle(client redis.Cmdable, maxAttempts int, window time.Duration) *RedisLoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &RedisLoginThrottle{
		client:      client,
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (s *RedisLoginThrottle) WithClock(now func() time.Time) *RedisLoginThrottle {
	if now != nil {
		s.now = now
	}
	return s
}

// Locked reports whether key is inside an active lockout window
func (s *RedisLoginThrottle) Locked(ctx context.Context, key string) (bool, error) {
	raw, err := s.client.HGet(ctx, lockoutKeyPrefix+key, "locked_until").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || unix <= 0 {
		return false, nil
	}
	return s.now().Before(time.Unix(unix, 0)), nil
}

// RecordFailure increments the failure counter and returns the new count
func (s *RedisLoginThrottle) RecordFailure(ctx context.Context, key string) (int, error) {
	redisKey := lockoutKeyPrefix + key

	count, err := s.client.HIncrBy(ctx, redisKey, "failed_count", 1).Result()
	if err != nil {
		return 0, err
	}

	if int(count) >= s.maxAttempts {
		lockedUntil := s.now().Add(s.window).UTC()
		_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, redisKey, "locked_until", lockedUntil.Unix())
			p.Expire(ctx, redisKey, s.window)
			return nil
		})
		if err != nil {
			return int(count), err
		}
		return int(count), nil
	}

	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, s.window).Err(); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}

// Reset clears the counter after a successful login
func (s *RedisLoginThrottle) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, lockoutKeyPrefix+key).Err()
}
