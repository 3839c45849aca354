package ratelimit

import (
	"context"
	"sync/atomic"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// Endpoint is the part of a routed endpoint the checker needs.
type Endpoint interface {
	// Identity is unique per (method, path, version).
	Identity() string
	// RateQuota returns the endpoint's own quota, if it has one.
	RateQuota() (models.Quota, bool)
}

// Checker maps a key's tier and the target endpoint onto limiter windows.
type Checker struct {
	limiter Limiter
	quotas  atomic.Pointer[map[models.Tier]models.Quota]
}

// NewChecker builds a checker using the given per-tier quotas. A tier with no
// quota has no key-wide limit.
func NewChecker(limiter Limiter, quotas map[models.Tier]models.Quota) *Checker {
	c := &Checker{limiter: limiter}
	c.SetQuotas(quotas)
	return c
}

// SetQuotas replaces the tier quotas for subsequent checks.
func (c *Checker) SetQuotas(quotas map[models.Tier]models.Quota) {
	copied := make(map[models.Tier]models.Quota, len(quotas))
	for t, q := range quotas {
		copied[t] = q
	}
	c.quotas.Store(&copied)
}

// Quota returns the key-wide quota for tier.
func (c *Checker) Quota(tier models.Tier) (models.Quota, bool) {
	q, ok := (*c.quotas.Load())[tier]
	return q, ok
}

// GlobalKey is the window key shared by all requests of one API key.
func GlobalKey(keyID string) string {
	return "key:" + keyID
}

// EndpointKey is the window key for one API key on one endpoint.
func EndpointKey(keyID, endpointIdentity string) string {
	return "key:" + keyID + "|" + endpointIdentity
}

// CheckAndIncrement admits one request for keyID against the tier quota and,
// when endpoint carries its own quota, against the (key, endpoint) quota too.
// A rejection returns an *ExceededError and consumes nothing.
func (c *Checker) CheckAndIncrement(ctx context.Context, keyID string, tier models.Tier, endpoint Endpoint) (Decision, error) {
	windows := make([]Window, 0, 2)
	if q, ok := c.Quota(tier); ok {
		windows = append(windows, Window{Key: GlobalKey(keyID), Quota: q})
	}
	if endpoint != nil {
		if q, ok := endpoint.RateQuota(); ok {
			windows = append(windows, Window{Key: EndpointKey(keyID, endpoint.Identity()), Quota: q})
		}
	}

	d, err := c.limiter.Take(ctx, windows)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &ExceededError{Limit: d.Limit, Window: d.Window, ResetAt: d.ResetAt}
	}
	return d, nil
}

// Usage exposes the limiter's view of a window key.
func (c *Checker) Usage(ctx context.Context, key string) (Usage, error) {
	return c.limiter.Usage(ctx, key)
}

// Reset clears a window key.
func (c *Checker) Reset(ctx context.Context, key string) error {
	return c.limiter.Reset(ctx, key)
}
