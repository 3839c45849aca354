package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
)

// Package queue hands work from request goroutines to background workers.
// Two backends share one interface:
//
// 1. Memory queue (bounded channel):
//    - No persistence, records are lost on restart
//    - Single process only
//
// 2. Redis queue (Redis list):
//    - Survives gateway restarts
//    - Several gateway pods can feed one set of workers
//
// Architecture:
//
//	┌─────────────┐
//	│  Processor  │
//	└──────┬──────┘
//	       │ UsageRecord (never blocks)
//	       ▼
//	┌──────────────┐
//	│ AsyncSink    │
//	└──────┬───────┘
//	       ▼
//	┌──────────────┐
//	│ Usage queue  │  memory or Redis list
//	└──────┬───────┘
//	       ▼
//	┌──────────────┐  (retry)  ┌─────┐
//	│ UsageWorker  │──────────▶│ DLQ │
//	└──────┬───────┘           └─────┘
//	       ▼
//	 Postgres / S3
//
// Items are generic. The Redis backend stores them as JSON, so T must
// round-trip through encoding/json.

// Queue defines the interface for message queuing
type Queue[T any] interface {
	// Enqueue adds an item, blocking while a memory queue is full
	Enqueue(ctx context.Context, item T) error

	// DequeueWithTimeout waits up to timeout for the first item, then takes
	// up to maxItems-1 more without waiting. An empty slice means timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterQueue holds items that exhausted their retries.
type DeadLetterQueue[T any] interface {
	Add(ctx context.Context, item T, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// QueueName is the name/key for the queue
	QueueName string

	// Capacity bounds the memory queue
	Capacity int

	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName:    queueName,
		Capacity:     1000,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}

// ConfigFromTelemetry maps the usage pipeline settings onto a queue Config.
func ConfigFromTelemetry(t config.TelemetryConfig) *Config {
	c := DefaultConfig(t.QueueName)
	if t.BatchSize > 0 {
		c.BatchSize = t.BatchSize
		c.Capacity = t.BatchSize * 10
	}
	if t.BufferSize > c.Capacity {
		c.Capacity = t.BufferSize
	}
	if t.FlushInterval > 0 {
		c.BatchTimeout = t.FlushInterval
	}
	if t.MaxRetries >= 0 {
		c.MaxRetries = t.MaxRetries
	}
	return c
}

func newItemID() string {
	return uuid.NewString()
}
