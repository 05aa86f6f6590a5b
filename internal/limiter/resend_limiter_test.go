package limiter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNilLimiterAllowsEverything(t *testing.T) {
	var l *ResendLimiter
	require.True(t, l.Allow(context.Background(), "a@x.com"))

	l = NewResendLimiter(nil, 1, time.Minute)
	require.True(t, l.Allow(context.Background(), "a@x.com"))
	require.True(t, l.Allow(context.Background(), "a@x.com"))
}

func TestLimiterBlocksAfterMax(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	l := NewResendLimiter(cache, 3, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(ctx, "a@x.com"), "request %d should pass", i+1)
	}
	require.False(t, l.Allow(ctx, "a@x.com"))

	// other addresses are unaffected
	require.True(t, l.Allow(ctx, "b@x.com"))

	// window expiry resets the counter
	mr.FastForward(16 * time.Minute)
	require.True(t, l.Allow(ctx, "a@x.com"))
}
