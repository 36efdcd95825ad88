package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T, limit int) (*Throttle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewThrottle(client, limit, 15*time.Minute), mr
}

func TestThrottleAllowsWithinBudget(t *testing.T) {
	throttle, _ := newTestThrottle(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, throttle.Allow(ctx, "kim@example.com"))
	}
	assert.ErrorIs(t, throttle.Allow(ctx, "kim@example.com"), ErrTooManyAttempts)
}

func TestThrottleKeysAreCaseInsensitive(t *testing.T) {
	throttle, _ := newTestThrottle(t, 1)
	ctx := context.Background()

	require.NoError(t, throttle.Allow(ctx, "Kim@Example.com"))
	assert.ErrorIs(t, throttle.Allow(ctx, "kim@example.com "), ErrTooManyAttempts)
}

func TestThrottleIsolatesCredentials(t *testing.T) {
	throttle, _ := newTestThrottle(t, 1)
	ctx := context.Background()

	require.NoError(t, throttle.Allow(ctx, "kim@example.com"))
	assert.NoError(t, throttle.Allow(ctx, "lee@example.com"))
}

func TestThrottleReset(t *testing.T) {
	throttle, _ := newTestThrottle(t, 1)
	ctx := context.Background()

	require.NoError(t, throttle.Allow(ctx, "kim@example.com"))
	require.ErrorIs(t, throttle.Allow(ctx, "kim@example.com"), ErrTooManyAttempts)

	require.NoError(t, throttle.Reset(ctx, "kim@example.com"))
	assert.NoError(t, throttle.Allow(ctx, "kim@example.com"))
}

func TestThrottleWindowExpires(t *testing.T) {
	throttle, mr := newTestThrottle(t, 1)
	ctx := context.Background()

	require.NoError(t, throttle.Allow(ctx, "kim@example.com"))
	require.ErrorIs(t, throttle.Allow(ctx, "kim@example.com"), ErrTooManyAttempts)

	mr.FastForward(16 * time.Minute)
	assert.NoError(t, throttle.Allow(ctx, "kim@example.com"))
}
