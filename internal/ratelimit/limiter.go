// Package ratelimit enforces fixed-window request quotas per API key and per
// (key, endpoint) pair.
//
// A single Take covers every window that applies to a request. The request is
// admitted only if all of them have room, and then all of them are
// incremented together; a rejected request consumes nothing.
package ratelimit

import (
	"context"
	"sort"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// Window names one counter and the quota it is held to.
type Window struct {
	Key   string
	Quota models.Quota
}

// Decision is the outcome of a Take. Limit, Remaining and ResetAt describe
// the binding window: the one that rejected the request, or the one closest
// to exhaustion when it was admitted.
type Decision struct {
	Allowed   bool
	Key       string
	Limit     int
	Remaining int
	Window    time.Duration
	ResetAt   time.Time
}

// Usage is a point-in-time view of one window.
type Usage struct {
	Key         string
	Count       int
	Limit       int
	WindowStart time.Time
	ResetAt     time.Time
}

// Limiter atomically checks and increments a set of windows.
type Limiter interface {
	Take(ctx context.Context, windows []Window) (Decision, error)
	Usage(ctx context.Context, key string) (Usage, error)
	Reset(ctx context.Context, key string) error
}

// NoopLimiter admits every request.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Take(ctx context.Context, windows []Window) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

func (l *NoopLimiter) Usage(ctx context.Context, key string) (Usage, error) {
	return Usage{Key: key}, nil
}

func (l *NoopLimiter) Reset(ctx context.Context, key string) error {
	return nil
}

// normalize drops disabled quotas and sorts by key. When the same key appears
// twice the stricter quota is kept.
func normalize(windows []Window) []Window {
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Quota.Enabled() {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	dedup := out[:0]
	for _, w := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Key == w.Key {
			if w.Quota.Limit < dedup[n-1].Quota.Limit {
				dedup[n-1] = w
			}
			continue
		}
		dedup = append(dedup, w)
	}
	return dedup
}

// windowState is what a backend knows about one window during a Take.
type windowState struct {
	key     string
	count   int // before this request
	limit   int
	size    time.Duration
	resetAt time.Time
}

// decide applies the admission rule to a consistent view of all windows.
func decide(states []windowState) Decision {
	var rejected *windowState
	for i := range states {
		s := &states[i]
		if s.count+1 > s.limit {
			// The caller must wait for the last full window to roll over.
			if rejected == nil || s.resetAt.After(rejected.resetAt) {
				rejected = s
			}
		}
	}
	if rejected != nil {
		return Decision{
			Allowed:   false,
			Key:       rejected.key,
			Limit:     rejected.limit,
			Remaining: 0,
			Window:    rejected.size,
			ResetAt:   rejected.resetAt,
		}
	}

	d := Decision{Allowed: true, Remaining: -1}
	for _, s := range states {
		remaining := s.limit - s.count - 1
		if d.Remaining < 0 || remaining < d.Remaining {
			d.Key = s.key
			d.Limit = s.limit
			d.Remaining = remaining
			d.Window = s.size
			d.ResetAt = s.resetAt
		}
	}
	return d
}
