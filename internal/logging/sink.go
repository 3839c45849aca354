package logging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/queue"
)

// UsageSink receives one usage record per processed request. Record must
// never block the caller.
type UsageSink interface {
	Record(rec *models.UsageRecord)
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Record(rec *models.UsageRecord) {}

// SinkStats counts what happened to records handed to an AsyncSink.
type SinkStats struct {
	Accepted int64 `json:"accepted"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// AsyncSink buffers records in memory and forwards them to a queue from a
// single goroutine. When the buffer is full new records are dropped.
type AsyncSink struct {
	q       queue.Queue[*models.UsageRecord]
	records chan *models.UsageRecord
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	accepted atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64

	dropLog rate.Sometimes
}

// NewAsyncSink starts the forwarding goroutine. bufferSize <= 0 means 1024.
func NewAsyncSink(q queue.Queue[*models.UsageRecord], bufferSize int) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	s := &AsyncSink{
		q:       q,
		records: make(chan *models.UsageRecord, bufferSize),
		timeout: 2 * time.Second,
		done:    make(chan struct{}),
		dropLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	go s.run()
	return s
}

// Record implements UsageSink.
func (s *AsyncSink) Record(rec *models.UsageRecord) {
	if rec == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop("sink closed")
		return
	}

	select {
	case s.records <- rec:
		s.accepted.Add(1)
	default:
		s.drop("buffer full")
	}
}

func (s *AsyncSink) drop(reason string) {
	n := s.dropped.Add(1)
	s.dropLog.Do(func() {
		Warningf("usage sink: dropping records (%s), %d dropped so far", reason, n)
	})
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.records {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.q.Enqueue(ctx, rec)
		cancel()
		if err != nil {
			s.failed.Add(1)
			Errorf("usage sink: enqueue %s failed: %v", rec.RequestID, err)
		}
	}
}

// Stats returns the current counters.
func (s *AsyncSink) Stats() SinkStats {
	return SinkStats{
		Accepted: s.accepted.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
	}
}

// Close stops accepting records and waits until the buffer has been handed
// to the queue or ctx ends.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
