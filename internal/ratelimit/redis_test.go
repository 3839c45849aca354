package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

func TestRedisLimiter_Take(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		limiter := NewRedisLimiter(client, "", nil)
		ctx := context.Background()
		windows := []Window{{Key: "key:test-key-1", Quota: models.Quota{Limit: 5, Window: time.Minute}}}

		for i := 0; i < 5; i++ {
			d, err := limiter.Take(ctx, windows)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
			assert.Equal(t, 5-i-1, d.Remaining)
			assert.False(t, d.ResetAt.IsZero())
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		limiter := NewRedisLimiter(client, "rl:", nil)
		ctx := context.Background()
		windows := []Window{{Key: "key:test-key-2", Quota: models.Quota{Limit: 3, Window: time.Minute}}}

		for i := 0; i < 3; i++ {
			d, err := limiter.Take(ctx, windows)
			require.NoError(t, err)
			assert.True(t, d.Allowed)
		}

		d, err := limiter.Take(ctx, windows)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.Equal(t, 3, d.Limit)
		assert.WithinDuration(t, time.Now().Add(time.Minute), d.ResetAt, 2*time.Second)

		val, err := mr.Get("rl:{key:test-key-2}")
		require.NoError(t, err)
		assert.Equal(t, "3", val)
	})

	t.Run("window rolls over after expiry", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		limiter := NewRedisLimiter(client, "", nil)
		ctx := context.Background()
		windows := []Window{{Key: "key:roll", Quota: models.Quota{Limit: 1, Window: time.Minute}}}

		d, err := limiter.Take(ctx, windows)
		require.NoError(t, err)
		require.True(t, d.Allowed)

		d, err = limiter.Take(ctx, windows)
		require.NoError(t, err)
		require.False(t, d.Allowed)

		mr.FastForward(time.Minute + time.Millisecond)

		d, err = limiter.Take(ctx, windows)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("multi window is all or nothing", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		limiter := NewRedisLimiter(client, "rl:", nil)
		ctx := context.Background()
		global := Window{Key: "key:k1", Quota: models.Quota{Limit: 10, Window: time.Minute}}
		endpoint := Window{Key: "key:k1|POST /bookings v1", Quota: models.Quota{Limit: 2, Window: time.Minute}}

		for i := 0; i < 4; i++ {
			d, err := limiter.Take(ctx, []Window{global, endpoint})
			require.NoError(t, err)
			assert.Equal(t, i < 2, d.Allowed)
		}

		val, err := mr.Get("rl:{key:k1}")
		require.NoError(t, err)
		assert.Equal(t, "2", val)

		val, err = mr.Get("rl:{key:k1}|POST /bookings v1")
		require.NoError(t, err)
		assert.Equal(t, "2", val)
	})

	t.Run("concurrent takes admit exactly the limit", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		limiter := NewRedisLimiter(client, "", nil)
		ctx := context.Background()
		windows := []Window{{Key: "key:race", Quota: models.Quota{Limit: 25, Window: time.Minute}}}

		var admitted atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := limiter.Take(ctx, windows)
				if err == nil && d.Allowed {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(25), admitted.Load())
	})
}

func TestRedisLimiter_Fallback(t *testing.T) {
	client, mr := setupTestRedis(t)
	fallback := NewMemoryLimiter()
	limiter := NewRedisLimiter(client, "", fallback)
	ctx := context.Background()
	windows := []Window{{Key: "key:fb", Quota: models.Quota{Limit: 1, Window: time.Minute}}}

	mr.Close()

	d, err := limiter.Take(ctx, windows)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Take(ctx, windows)
	require.NoError(t, err)
	assert.False(t, d.Allowed, "fallback limiter must still enforce the quota")
}

func TestRedisLimiter_ErrorWithoutFallback(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client, "", nil)
	mr.Close()

	_, err := limiter.Take(context.Background(), []Window{{Key: "key:x", Quota: models.Quota{Limit: 1, Window: time.Minute}}})
	assert.Error(t, err)
}

func TestRedisLimiter_UsageAndReset(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, "", nil)
	ctx := context.Background()
	windows := []Window{{Key: "key:u", Quota: models.Quota{Limit: 10, Window: time.Minute}}}

	u, err := limiter.Usage(ctx, "key:u")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Count)

	for i := 0; i < 3; i++ {
		_, err := limiter.Take(ctx, windows)
		require.NoError(t, err)
	}

	u, err = limiter.Usage(ctx, "key:u")
	require.NoError(t, err)
	assert.Equal(t, 3, u.Count)
	assert.False(t, u.ResetAt.IsZero())

	require.NoError(t, limiter.Reset(ctx, "key:u"))
	u, err = limiter.Usage(ctx, "key:u")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Count)
}
