package storage

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

const trackerShards = 16

// LastUsedWriter persists coalesced key uses.
type LastUsedWriter interface {
	UpdateLastUsed(ctx context.Context, uses map[uuid.UUID]time.Time) error
}

type trackerShard struct {
	mu      sync.Mutex
	pending map[uuid.UUID]time.Time
}

// LastUsedTracker implements auth.LastUsedRecorder. Uses are coalesced in
// memory, keeping the latest timestamp per key, and flushed periodically.
// RecordUse holds a shard lock for a single map write, so it never waits on
// I/O and every use is kept.
type LastUsedTracker struct {
	writer   LastUsedWriter
	interval time.Duration
	shards   [trackerShards]trackerShard
	logger   *utils.Logger

	flushed atomic.Int64

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// NewLastUsedTracker creates a tracker flushing every interval (30s if unset).
func NewLastUsedTracker(writer LastUsedWriter, interval time.Duration) *LastUsedTracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := &LastUsedTracker{
		writer:   writer,
		interval: interval,
		logger:   utils.NewLogger("last-used"),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for i := range t.shards {
		t.shards[i].pending = make(map[uuid.UUID]time.Time)
	}
	return t
}

func (t *LastUsedTracker) shardFor(id uuid.UUID) *trackerShard {
	h := fnv.New32a()
	h.Write(id[:])
	return &t.shards[h.Sum32()%trackerShards]
}

// RecordUse notes that keyID was used at at. Ids that are not UUIDs, such
// as seeded in-memory keys, are ignored.
func (t *LastUsedTracker) RecordUse(keyID string, at time.Time) {
	id, err := uuid.Parse(keyID)
	if err != nil {
		return
	}
	s := t.shardFor(id)
	s.mu.Lock()
	if prev, ok := s.pending[id]; !ok || at.After(prev) {
		s.pending[id] = at
	}
	s.mu.Unlock()
}

// Pending returns how many keys are waiting to be flushed.
func (t *LastUsedTracker) Pending() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.pending)
		s.mu.Unlock()
	}
	return n
}

// Flushed returns how many key updates have been written.
func (t *LastUsedTracker) Flushed() int64 {
	return t.flushed.Load()
}

// Flush writes everything pending. On failure the uses are merged back so
// the next flush retries them.
func (t *LastUsedTracker) Flush(ctx context.Context) error {
	batch := make(map[uuid.UUID]time.Time)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for id, at := range s.pending {
			batch[id] = at
		}
		s.pending = make(map[uuid.UUID]time.Time)
		s.mu.Unlock()
	}
	if len(batch) == 0 {
		return nil
	}

	if err := t.writer.UpdateLastUsed(ctx, batch); err != nil {
		for id, at := range batch {
			s := t.shardFor(id)
			s.mu.Lock()
			if prev, ok := s.pending[id]; !ok || at.After(prev) {
				s.pending[id] = at
			}
			s.mu.Unlock()
		}
		return err
	}
	t.flushed.Add(int64(len(batch)))
	t.logger.Debug("Flushed last-used stamps", "keys", len(batch))
	return nil
}

// Start runs the periodic flush until Stop.
func (t *LastUsedTracker) Start() {
	if t.started.CompareAndSwap(false, true) {
		go t.run()
	}
}

func (t *LastUsedTracker) run() {
	defer close(t.stopped)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.interval)
			if err := t.Flush(ctx); err != nil {
				t.logger.Warn("Failed to flush last-used stamps", "error", err)
			}
			cancel()
		case <-t.stop:
			return
		}
	}
}

// Stop ends the periodic flush and writes what is left.
func (t *LastUsedTracker) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.stop) })
	if t.started.Load() {
		select {
		case <-t.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.Flush(ctx)
}
