package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
)

type record struct {
	RequestID string `json:"request_id"`
	Status    int    `json:"status"`
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue[record](DefaultConfig("test"))
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, record{RequestID: "r-1", Status: 200}))

	items, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "r-1", items[0].RequestID)
}

func TestMemoryQueue_Batches(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.BatchSize = 5
	q := NewMemoryQueue[int](cfg)
	defer q.Close()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, q.Enqueue(ctx, i))
	}
	n, _ := q.Length(ctx)
	assert.Equal(t, 12, n)

	first, err := q.DequeueWithTimeout(ctx, 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, first)

	rest, err := q.DequeueWithTimeout(ctx, 100, time.Second)
	require.NoError(t, err)
	assert.Len(t, rest, 7)
}

func TestMemoryQueue_TimeoutReturnsEmpty(t *testing.T) {
	q := NewMemoryQueue[int](DefaultConfig("test"))
	defer q.Close()

	start := time.Now()
	items, err := q.DequeueWithTimeout(context.Background(), 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestMemoryQueue_ContextCancel(t *testing.T) {
	q := NewMemoryQueue[int](DefaultConfig("test"))
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.DequeueWithTimeout(ctx, 10, time.Minute)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemoryQueue_FullEnqueueRespectsContext(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Capacity = 2
	q := NewMemoryQueue[int](cfg)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), 1))
	require.NoError(t, q.Enqueue(context.Background(), 2))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, 3), context.DeadlineExceeded)
}

func TestMemoryQueue_CloseWakesWaitersAndDrains(t *testing.T) {
	q := NewMemoryQueue[int](DefaultConfig("test"))
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 7))

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(ctx, 8), ErrQueueClosed)

	items, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, items)

	_, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	assert.ErrorIs(t, err, ErrQueueClosed)

	blocked := NewMemoryQueue[int](DefaultConfig("test"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		items, err := blocked.DequeueWithTimeout(ctx, 10, time.Minute)
		assert.NoError(t, err)
		assert.Empty(t, items)
	}()
	time.Sleep(10 * time.Millisecond)
	blocked.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the waiting consumer")
	}
}

func TestMemoryQueue_ConcurrentProducers(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Capacity = 1000
	q := NewMemoryQueue[int](cfg)
	defer q.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, q.Enqueue(ctx, p*100+i))
			}
		}(p)
	}
	wg.Wait()

	seen := map[int]bool{}
	for len(seen) < 500 {
		items, err := q.DequeueWithTimeout(ctx, 64, time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, items)
		for _, it := range items {
			assert.False(t, seen[it], "duplicate %d", it)
			seen[it] = true
		}
	}
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue[record]()
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, record{RequestID: "a"}, errors.New("insert failed")))
	require.NoError(t, dlq.Add(ctx, record{RequestID: "b"}, ErrMaxRetriesExceeded))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Item.RequestID)
	assert.Equal(t, "insert failed", items[0].Error)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	one, _ := dlq.List(ctx, 1)
	assert.Len(t, one, 1)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrItemNotFound)

	require.NoError(t, dlq.Close())
	assert.ErrorIs(t, dlq.Add(ctx, record{}, nil), ErrQueueClosed)
}

func TestConfigFromTelemetry(t *testing.T) {
	c := ConfigFromTelemetry(config.TelemetryConfig{
		QueueName:     "usage_records",
		BufferSize:    5000,
		BatchSize:     50,
		FlushInterval: 2 * time.Second,
		MaxRetries:    5,
	})

	assert.Equal(t, "usage_records", c.QueueName)
	assert.Equal(t, 50, c.BatchSize)
	assert.Equal(t, 5000, c.Capacity)
	assert.Equal(t, 2*time.Second, c.BatchTimeout)
	assert.Equal(t, 5, c.MaxRetries)
}
