package logging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/queue"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// BatchWriter persists usage records. Implementations must be safe to call
// again with the same batch after a failure.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*models.UsageRecord) error
}

// BatchWriterFunc adapts a function to BatchWriter.
type BatchWriterFunc func(ctx context.Context, records []*models.UsageRecord) error

func (f BatchWriterFunc) WriteBatch(ctx context.Context, records []*models.UsageRecord) error {
	return f(ctx, records)
}

// UsageWorker drains the usage queue in batches and writes them out,
// retrying with exponential backoff and parking batches that keep failing
// in the dead letter queue.
type UsageWorker struct {
	queue  queue.Queue[*models.UsageRecord]
	dlq    queue.DeadLetterQueue[*models.UsageRecord]
	writer BatchWriter
	config *queue.Config
	logger *utils.Logger

	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// NewUsageWorker creates a worker. dlq may be nil, in which case batches
// that exhaust their retries are dropped.
func NewUsageWorker(q queue.Queue[*models.UsageRecord], dlq queue.DeadLetterQueue[*models.UsageRecord], writer BatchWriter, config *queue.Config) *UsageWorker {
	if config == nil {
		config = queue.DefaultConfig("usage_records")
	}
	return &UsageWorker{
		queue:   q,
		dlq:     dlq,
		writer:  writer,
		config:  config,
		logger:  utils.NewLogger("usage-worker").With("queue", config.QueueName),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *UsageWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the worker and waits for it to finish the batch in hand and
// drain what is left in the queue, or for ctx to end.
func (w *UsageWorker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *UsageWorker) run(ctx context.Context) {
	defer close(w.stopped)

	// runCtx ends on Stop so a blocked dequeue wakes up.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		select {
		case <-runCtx.Done():
			w.drain()
			return
		default:
		}
		if err := w.processBatch(runCtx); err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				w.logger.Info("Usage queue closed, worker exiting")
				return
			}
			if runCtx.Err() == nil {
				w.logger.Error("Failed to dequeue usage records", "error", err)
				w.sleep(runCtx, time.Second)
			}
		}
	}
}

// drain flushes whatever is still queued after a stop, using a fresh
// context bounded by the batch timeout per batch.
func (w *UsageWorker) drain() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.BatchTimeout+5*time.Second)
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 10*time.Millisecond)
		if err != nil || len(items) == 0 {
			cancel()
			return
		}
		w.handle(ctx, items)
		cancel()
	}
}

// processBatch dequeues and writes one batch. It returns only dequeue errors.
func (w *UsageWorker) processBatch(ctx context.Context) error {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	// The batch is already off the queue; finish it even if we are stopping.
	w.handle(context.WithoutCancel(ctx), items)
	return nil
}

func (w *UsageWorker) handle(ctx context.Context, records []*models.UsageRecord) {
	w.logger.Debug("Processing usage batch", "count", len(records))
	if err := w.writeWithRetry(ctx, records); err != nil {
		w.deadLetter(ctx, records, err)
	}
}

func (w *UsageWorker) writeWithRetry(ctx context.Context, records []*models.UsageRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage batch", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff) {
				break
			}
		}
		if lastErr = w.writer.WriteBatch(ctx, records); lastErr == nil {
			w.logger.Debug("Usage batch written", "count", len(records))
			return nil
		}
		w.logger.Warn("Failed to write usage batch", "attempt", attempt, "count", len(records), "error", lastErr)
	}
	return fmt.Errorf("%w: %w", queue.ErrMaxRetriesExceeded, lastErr)
}

func (w *UsageWorker) deadLetter(ctx context.Context, records []*models.UsageRecord, cause error) {
	if w.dlq == nil {
		w.logger.Error("Dropping usage batch", "count", len(records), "error", cause)
		return
	}
	for _, rec := range records {
		if err := w.dlq.Add(ctx, rec, cause); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "request_id", rec.RequestID, "error", err)
		}
	}
	w.logger.Warn("Usage batch moved to DLQ", "count", len(records), "error", cause)
}

// sleep waits for d unless ctx ends first. It reports whether the full
// duration elapsed.
func (w *UsageWorker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// QueueLength returns the current queue length
func (w *UsageWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns items from the dead letter queue
func (w *UsageWorker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[*models.UsageRecord], error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem puts a dead letter back on the queue.
func (w *UsageWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return queue.ErrItemNotFound
}
