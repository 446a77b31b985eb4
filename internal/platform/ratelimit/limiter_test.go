package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_SlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewLimiter(client)
	base := time.UnixMilli(1_700_000_000_000)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	window := 2 * time.Second
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "rl:test", 3, window, fmt.Sprintf("m-%d", i))
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	l.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	d, err := l.Allow(ctx, "rl:test", 3, window, "m-over")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	// 窗口滑过之后重新放行
	l.now = func() time.Time { return base.Add(window + time.Millisecond) }
	d, err = l.Allow(ctx, "rl:test", 3, window, "m-after")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err := NewLimiter(client).Allow(context.Background(), "rl:x", 1, time.Second, "m")
	assert.Error(t, err)
}
