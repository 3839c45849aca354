package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const defaultShards = 64

// MemoryLimiter keeps windows in process memory, spread over shards by key
// hash. Shard locks only guard the key index; counters are guarded by a lock
// per window, so unrelated keys never contend.
type MemoryLimiter struct {
	shards []*shard
	now    func() time.Time

	janitorInterval time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	stopOnce        sync.Once
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu    sync.Mutex
	start time.Time
	count int
	limit int
	size  time.Duration
	// evicted is set by the janitor or Reset once the window has left the
	// index; takers that locked a stale pointer retry with a fresh one.
	evicted bool
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithShards sets the number of key shards.
func WithShards(n int) MemoryOption {
	return func(l *MemoryLimiter) {
		if n > 0 {
			l.shards = make([]*shard, n)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) { l.now = now }
}

// WithJanitor sweeps elapsed windows every interval. Call Close to stop it.
func WithJanitor(interval time.Duration) MemoryOption {
	return func(l *MemoryLimiter) { l.janitorInterval = interval }
}

func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		shards: make([]*shard, defaultShards),
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*window)}
	}

	if l.janitorInterval > 0 {
		go l.janitor()
	} else {
		close(l.doneCh)
	}
	return l
}

func (l *MemoryLimiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// lookup returns the window for key, creating it if needed. It never holds a
// window lock, so shard and window locks are never held in the opposite order.
func (l *MemoryLimiter) lookup(w Window, now time.Time) *window {
	s := l.shardFor(w.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	win, ok := s.windows[w.Key]
	if !ok {
		win = &window{start: now, limit: w.Quota.Limit, size: w.Quota.Window}
		s.windows[w.Key] = win
	}
	return win
}

// Take admits the request if every window has room and increments all of
// them. Windows are locked in key order so concurrent multi-window takes
// cannot deadlock.
func (l *MemoryLimiter) Take(ctx context.Context, windows []Window) (Decision, error) {
	ws := normalize(windows)
	if len(ws) == 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	held := make([]*window, len(ws))
	states := make([]windowState, len(ws))
	for {
		now := l.now()
		for i, w := range ws {
			held[i] = l.lookup(w, now)
		}

		stale := false
		for i, win := range held {
			win.mu.Lock()
			if win.evicted {
				stale = true
				unlockAll(held[:i+1])
				break
			}
		}
		if stale {
			continue
		}

		for i, win := range held {
			win.limit = ws[i].Quota.Limit
			win.size = ws[i].Quota.Window
			win.roll(now)
			states[i] = windowState{
				key:     ws[i].Key,
				count:   win.count,
				limit:   win.limit,
				size:    win.size,
				resetAt: win.start.Add(win.size),
			}
		}

		d := decide(states)
		if d.Allowed {
			for _, win := range held {
				win.count++
			}
		}
		unlockAll(held)
		return d, nil
	}
}

func unlockAll(ws []*window) {
	for _, w := range ws {
		w.mu.Unlock()
	}
}

// roll starts a new window once the current one has elapsed.
func (w *window) roll(now time.Time) {
	if !now.Before(w.start.Add(w.size)) {
		w.start = now
		w.count = 0
	}
}

// Usage reports the live count for key. Unknown keys report zero.
func (l *MemoryLimiter) Usage(ctx context.Context, key string) (Usage, error) {
	s := l.shardFor(key)
	s.mu.Lock()
	win, ok := s.windows[key]
	s.mu.Unlock()
	if !ok {
		return Usage{Key: key}, nil
	}

	now := l.now()
	win.mu.Lock()
	defer win.mu.Unlock()
	u := Usage{
		Key:         key,
		Count:       win.count,
		Limit:       win.limit,
		WindowStart: win.start,
		ResetAt:     win.start.Add(win.size),
	}
	if win.evicted || !now.Before(u.ResetAt) {
		u.Count = 0
	}
	return u, nil
}

// Reset drops the window for key; the next request starts a fresh one.
func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	s := l.shardFor(key)
	s.mu.Lock()
	win, ok := s.windows[key]
	if ok {
		delete(s.windows, key)
	}
	s.mu.Unlock()

	if ok {
		win.mu.Lock()
		win.evicted = true
		win.mu.Unlock()
	}
	return nil
}

// Len returns the number of tracked windows.
func (l *MemoryLimiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// Sweep removes windows that have elapsed and returns how many were removed.
// Windows busy in a Take are skipped until the next sweep.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, win := range s.windows {
			if !win.mu.TryLock() {
				continue
			}
			if !now.Before(win.start.Add(win.size)) {
				win.evicted = true
				delete(s.windows, key)
				removed++
			}
			win.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}

func (l *MemoryLimiter) janitor() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stopCh:
			return
		}
	}
}

// Close stops the janitor.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}
