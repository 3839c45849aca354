package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewRedisQueue_RequiresClient(t *testing.T) {
	_, err := NewRedisQueue[record](nil, DefaultConfig("x"))
	assert.Error(t, err)
	_, err = NewRedisDeadLetterQueue[record](nil, DefaultConfig("x"))
	assert.Error(t, err)
}

func TestRedisQueue_EnqueueDequeue(t *testing.T) {
	mr, client := setupRedis(t)
	q, err := NewRedisQueue[record](client, DefaultConfig("usage_records"))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, record{RequestID: string(rune('a' + i)), Status: 200}))
	}
	assert.True(t, mr.Exists("queue:usage_records"))

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	items, err := q.DequeueWithTimeout(ctx, 3, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].RequestID)
	assert.Equal(t, "c", items[2].RequestID)

	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRedisQueue_SkipsMalformedItems(t *testing.T) {
	mr, client := setupRedis(t)
	q, err := NewRedisQueue[record](client, DefaultConfig("usage_records"))
	require.NoError(t, err)

	_, err = mr.Push("queue:usage_records", "{not json", `{"request_id":"ok","status":201}`)
	require.NoError(t, err)

	items, err := q.DequeueWithTimeout(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 201, items[0].Status)
}

func TestRedisQueue_CloseKeepsSharedClient(t *testing.T) {
	_, client := setupRedis(t)
	q, err := NewRedisQueue[record](client, DefaultConfig("usage_records"))
	require.NoError(t, err)

	require.NoError(t, q.Close())
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestRedisQueue_ServerDown(t *testing.T) {
	mr, client := setupRedis(t)
	q, err := NewRedisQueue[record](client, DefaultConfig("usage_records"))
	require.NoError(t, err)
	mr.Close()

	assert.Error(t, q.Enqueue(context.Background(), record{RequestID: "x"}))
}

func TestRedisDeadLetterQueue(t *testing.T) {
	_, client := setupRedis(t)
	dlq, err := NewRedisDeadLetterQueue[record](client, DefaultConfig("usage_records"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, record{RequestID: "first"}, errors.New("pq: connection refused")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, dlq.Add(ctx, record{RequestID: "second"}, ErrMaxRetriesExceeded))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Item.RequestID)
	assert.Equal(t, "pq: connection refused", items[0].Error)

	limited, err := dlq.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrItemNotFound)

	items, err = dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
