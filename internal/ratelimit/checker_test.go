package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

type testEndpoint struct {
	id    string
	quota *models.Quota
}

func (e testEndpoint) Identity() string { return e.id }

func (e testEndpoint) RateQuota() (models.Quota, bool) {
	if e.quota == nil {
		return models.Quota{}, false
	}
	return *e.quota, true
}

func TestChecker_FreeTierScenario(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	checker := NewChecker(NewMemoryLimiter(WithClock(clock.Now)), models.DefaultQuotas())
	ctx := context.Background()
	ep := testEndpoint{id: "GET /courses v1"}

	ok, throttled := 0, 0
	for i := 0; i < 150; i++ {
		clock.Advance(6 * time.Millisecond)
		_, err := checker.CheckAndIncrement(ctx, "free-key", models.TierFree, ep)
		if err == nil {
			ok++
			continue
		}

		var exceeded *ExceededError
		require.True(t, errors.As(err, &exceeded))
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
		assert.Equal(t, 100, exceeded.Limit)
		assert.Equal(t, time.Minute, exceeded.Window)
		assert.WithinDuration(t, start.Add(60*time.Second), exceeded.ResetAt, 10*time.Millisecond)
		throttled++
	}

	assert.Equal(t, 100, ok)
	assert.Equal(t, 50, throttled)
}

func TestChecker_ExhaustedKeyRecoversAfterWindow(t *testing.T) {
	clock := newFakeClock()
	checker := NewChecker(NewMemoryLimiter(WithClock(clock.Now)), map[models.Tier]models.Quota{
		models.TierFree: {Limit: 2, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := checker.CheckAndIncrement(ctx, "k", models.TierFree, nil)
		require.NoError(t, err)
	}
	_, err := checker.CheckAndIncrement(ctx, "k", models.TierFree, nil)
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	clock.Advance(time.Minute + time.Millisecond)
	_, err = checker.CheckAndIncrement(ctx, "k", models.TierFree, nil)
	assert.NoError(t, err)
}

func TestChecker_EndpointQuota(t *testing.T) {
	checker := NewChecker(NewMemoryLimiter(), models.DefaultQuotas())
	ctx := context.Background()
	bookings := testEndpoint{id: "POST /bookings v1", quota: &models.Quota{Limit: 2, Window: time.Minute}}
	courses := testEndpoint{id: "GET /courses v1"}

	for i := 0; i < 2; i++ {
		_, err := checker.CheckAndIncrement(ctx, "k", models.TierPremium, bookings)
		require.NoError(t, err)
	}
	_, err := checker.CheckAndIncrement(ctx, "k", models.TierPremium, bookings)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Limit)

	_, err = checker.CheckAndIncrement(ctx, "k", models.TierPremium, courses)
	assert.NoError(t, err, "other endpoints only count against the key-wide quota")

	u, err := checker.Usage(ctx, GlobalKey("k"))
	require.NoError(t, err)
	assert.Equal(t, 3, u.Count)

	u, err = checker.Usage(ctx, EndpointKey("k", bookings.id))
	require.NoError(t, err)
	assert.Equal(t, 2, u.Count)
}

func TestChecker_SetQuotas(t *testing.T) {
	quotas := map[models.Tier]models.Quota{models.TierFree: {Limit: 1, Window: time.Minute}}
	checker := NewChecker(NewMemoryLimiter(), quotas)
	quotas[models.TierFree] = models.Quota{Limit: 99, Window: time.Minute}

	q, ok := checker.Quota(models.TierFree)
	require.True(t, ok)
	assert.Equal(t, 1, q.Limit, "checker must copy the quota map")

	checker.SetQuotas(map[models.Tier]models.Quota{})
	_, ok = checker.Quota(models.TierFree)
	assert.False(t, ok)

	_, err := checker.CheckAndIncrement(context.Background(), "k", models.TierFree, nil)
	assert.NoError(t, err, "a tier without a quota is unlimited")
}

func TestExceededError_RetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &ExceededError{Limit: 1, Window: time.Minute, ResetAt: now.Add(1500 * time.Millisecond)}

	assert.Equal(t, 2*time.Second, e.RetryAfter(now))
	assert.Equal(t, time.Duration(0), e.RetryAfter(now.Add(time.Hour)))
	assert.Contains(t, e.Error(), "1 requests per 1m0s")
}
