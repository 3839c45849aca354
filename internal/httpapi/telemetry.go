package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/queue"
	"github.com/Chromeox/CourseScout-sub015/internal/storage"
)

// Telemetry is the usage record pipeline:
// processor -> AsyncSink -> queue -> UsageWorker -> BatchWriter.
type Telemetry struct {
	Sink   *logging.AsyncSink
	Worker *logging.UsageWorker
	Queue  queue.Queue[*models.UsageRecord]
	DLQ    queue.DeadLetterQueue[*models.UsageRecord]
}

// NewTelemetry builds the pipeline described by cfg.Telemetry. redisClient is
// required for the redis queue type and db for the postgres writer.
func NewTelemetry(ctx context.Context, cfg *config.Config, redisClient *redis.Client, db *storage.DB) (*Telemetry, error) {
	qcfg := queue.ConfigFromTelemetry(cfg.Telemetry)

	var (
		q   queue.Queue[*models.UsageRecord]
		dlq queue.DeadLetterQueue[*models.UsageRecord]
		err error
	)
	if cfg.Telemetry.QueueType == "redis" {
		if redisClient == nil {
			return nil, errors.New("redis usage queue requires a Redis client")
		}
		q, err = queue.NewRedisQueue[*models.UsageRecord](redisClient, qcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage queue: %w", err)
		}
		dlq, err = queue.NewRedisDeadLetterQueue[*models.UsageRecord](redisClient, qcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create usage DLQ: %w", err)
		}
	} else {
		q = queue.NewMemoryQueue[*models.UsageRecord](qcfg)
		dlq = queue.NewMemoryDeadLetterQueue[*models.UsageRecord]()
	}

	writer, err := newBatchWriter(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Sink:   logging.NewAsyncSink(q, cfg.Telemetry.BufferSize),
		Worker: logging.NewUsageWorker(q, dlq, writer, qcfg),
		Queue:  q,
		DLQ:    dlq,
	}, nil
}

func newBatchWriter(ctx context.Context, cfg *config.Config, db *storage.DB) (logging.BatchWriter, error) {
	switch cfg.Telemetry.Writer {
	case config.TelemetryWriterPostgres:
		if db == nil {
			return nil, errors.New("postgres usage writer requires a database")
		}
		return db.NewUsageRepository(), nil
	case config.TelemetryWriterS3:
		w, err := logging.NewS3Writer(ctx, cfg.LoggingSink)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 usage writer: %w", err)
		}
		return w, nil
	default:
		return logging.BatchWriterFunc(func(ctx context.Context, records []*models.UsageRecord) error {
			logging.Debugf("usage: discarding %d records (no writer configured)", len(records))
			return nil
		}), nil
	}
}

// Start starts the worker.
func (t *Telemetry) Start(ctx context.Context) {
	t.Worker.Start(ctx)
}

// Close flushes the sink into the queue, lets the worker drain the queue and
// then closes both queues.
func (t *Telemetry) Close(ctx context.Context) error {
	var errs []error
	if err := t.Sink.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("usage sink: %w", err))
	}
	if err := t.Worker.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("usage worker: %w", err))
	}
	if err := t.Queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("usage queue: %w", err))
	}
	if err := t.DLQ.Close(); err != nil {
		errs = append(errs, fmt.Errorf("usage DLQ: %w", err))
	}
	return errors.Join(errs...)
}
