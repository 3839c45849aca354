package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded matches every *ExceededError.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError carries what a throttled caller needs to back off.
type ExceededError struct {
	Limit   int
	Window  time.Duration
	ResetAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per %s, resets at %s",
		e.Limit, e.Window, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds.
func (e *ExceededError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
