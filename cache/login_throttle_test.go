package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-shop-auth"
)

var _ auth.LoginThrottle = (*RedisLoginThrottle)(nil)

func setupThrottle(t *testing.T, maxAttempts int, window time.Duration) (*RedisLoginThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLoginThrottle(client, maxAttempts, window), mr
}

func TestRedisLoginThrottleLocksAfterMaxAttempts(t *testing.T) {
	throttle, mr := setupThrottle(t, 3, time.Minute)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	throttle.WithClock(func() time.Time { return now })

	for i := 1; i <= 2; i++ {
		count, err := throttle.RecordFailure(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, i, count)

		locked, err := throttle.Locked(ctx, "a@x.com")
		require.NoError(t, err)
		assert.False(t, locked)
	}

	count, err := throttle.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	locked, err := throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, locked)

	assert.Equal(t, time.Minute, mr.TTL(lockoutKeyPrefix+"a@x.com"))

	other, err := throttle.Locked(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, other)
}

func TestRedisLoginThrottleWindowElapses(t *testing.T) {
	throttle, _ := setupThrottle(t, 1, time.Minute)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	throttle.WithClock(func() time.Time { return now })

	_, err := throttle.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)

	locked, err := throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, locked)

	now = now.Add(2 * time.Minute)
	locked, err = throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisLoginThrottleCounterExpires(t *testing.T) {
	throttle, mr := setupThrottle(t, 5, time.Minute)
	ctx := context.Background()

	_, err := throttle.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockoutKeyPrefix+"a@x.com"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(lockoutKeyPrefix+"a@x.com"))

	count, err := throttle.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedisLoginThrottleReset(t *testing.T) {
	throttle, mr := setupThrottle(t, 1, time.Minute)
	ctx := context.Background()

	_, err := throttle.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)

	require.NoError(t, throttle.Reset(ctx, "a@x.com"))
	assert.False(t, mr.Exists(lockoutKeyPrefix+"a@x.com"))

	locked, err := throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisLoginThrottleSurfacesRedisErrors(t *testing.T) {
	throttle, mr := setupThrottle(t, 3, time.Minute)
	mr.Close()

	_, err := throttle.Locked(context.Background(), "a@x.com")
	assert.Error(t, err)

	_, err = throttle.RecordFailure(context.Background(), "a@x.com")
	assert.Error(t, err)
}

func TestNewRedisLoginThrottleDefaults(t *testing.T) {
	throttle := NewRedisLoginThrottle(nil, 0, 0)
	assert.Equal(t, DefaultMaxAttempts, throttle.maxAttempts)
	assert.Equal(t, DefaultLockoutWindow, throttle.window)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client, err = Connect(ctx, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = Connect(ctx, "redis://:bad url")
	assert.Error(t, err)
}
