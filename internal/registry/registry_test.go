package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

func okHandler(body string) Handler {
	return HandlerFunc(func(ctx context.Context, req *models.RequestEnvelope) (any, error) {
		return body, nil
	})
}

func endpoint(path, method, version string, tier models.Tier) Endpoint {
	return Endpoint{Path: path, Method: method, Version: version, RequiredTier: tier, Handler: okHandler(path)}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(endpoint("/courses/", "get", "V1", models.TierFree)))

	ep, err := r.Resolve("/courses", "GET", "v1")
	require.NoError(t, err)
	assert.Equal(t, "/courses", ep.Path)
	assert.Equal(t, "GET", ep.Method)
	assert.Equal(t, "v1", ep.Version)
	assert.Equal(t, "GET /courses v1", ep.Identity())

	got, err := ep.Handler.Handle(context.Background(), &models.RequestEnvelope{})
	require.NoError(t, err)
	assert.Equal(t, "/courses", got)

	_, err = r.Resolve("/courses", "POST", "v1")
	assert.ErrorIs(t, err, ErrEndpointNotFound)
	_, err = r.Resolve("/courses", "GET", "v2")
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestRegistry_ResolveUnknownPath(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(endpoint("/courses", "GET", "v1", models.TierFree)))

	_, err := r.Resolve("/nonexistent", "GET", "v1")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "/nonexistent", nf.Path)
	assert.Equal(t, "endpoint not found: /nonexistent", err.Error())
}

func TestRegistry_DuplicateIsRejected(t *testing.T) {
	r := New()
	first := endpoint("/bookings", "POST", "v1", models.TierPremium)
	require.NoError(t, r.Register(first))

	second := endpoint("/bookings", "post", "v1", models.TierFree)
	err := r.Register(second)
	require.ErrorIs(t, err, ErrDuplicateEndpoint)
	assert.Contains(t, err.Error(), "POST /bookings v1")

	ep, err := r.Resolve("/bookings", "POST", "v1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, ep.RequiredTier, "original entry must survive")

	require.NoError(t, r.Upsert(second))
	ep, err = r.Resolve("/bookings", "POST", "v1")
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, ep.RequiredTier)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_InvalidEndpoints(t *testing.T) {
	q := models.Quota{}
	tests := []struct {
		name string
		ep   Endpoint
	}{
		{name: "relative path", ep: endpoint("courses", "GET", "v1", models.TierFree)},
		{name: "no method", ep: endpoint("/a", "", "v1", models.TierFree)},
		{name: "no version", ep: endpoint("/a", "GET", "", models.TierFree)},
		{name: "unknown tier", ep: endpoint("/a", "GET", "v1", models.Tier("gold"))},
		{name: "no handler", ep: Endpoint{Path: "/a", Method: "GET", Version: "v1", RequiredTier: models.TierFree}},
		{name: "zero quota", ep: func() Endpoint { e := endpoint("/a", "GET", "v1", models.TierFree); e.Quota = &q; return e }()},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.Register(tt.ep), ErrInvalidEndpoint)
			assert.ErrorIs(t, r.Upsert(tt.ep), ErrInvalidEndpoint)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_EmptyVersionResolvesLatest(t *testing.T) {
	r := New()
	for _, v := range []string{"v1", "v10", "v2", "beta"} {
		require.NoError(t, r.Register(endpoint("/scores", "GET", v, models.TierFree)))
	}

	ep, err := r.Resolve("/scores", "GET", "")
	require.NoError(t, err)
	assert.Equal(t, "beta", ep.Version, "non-numeric labels sort after numeric ones")

	require.True(t, r.Deregister("/scores", "GET", "beta"))
	ep, err = r.Resolve("/scores", "GET", "")
	require.NoError(t, err)
	assert.Equal(t, "v10", ep.Version)
}

func TestRegistry_Deregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(endpoint("/a", "GET", "v1", models.TierFree)))

	assert.True(t, r.Deregister("/a/", "get", "V1"))
	assert.False(t, r.Deregister("/a", "GET", "v1"))

	_, err := r.Resolve("/a", "GET", "v1")
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestRegistry_ListAvailable(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(endpoint("/courses", "GET", "v1", models.TierFree)))
	require.NoError(t, r.Register(endpoint("/bookings", "POST", "v1", models.TierPremium)))
	require.NoError(t, r.Register(endpoint("/analytics", "GET", "v2", models.TierBusiness)))
	require.NoError(t, r.Register(endpoint("/analytics", "GET", "v1", models.TierBusiness)))
	require.NoError(t, r.Register(endpoint("/export", "GET", "v1", models.TierEnterprise)))

	identities := func(eps []*Endpoint) []string {
		out := make([]string, len(eps))
		for i, ep := range eps {
			out[i] = ep.Identity()
		}
		return out
	}

	assert.Equal(t, []string{"GET /courses v1"}, identities(r.ListAvailable(models.TierFree)))
	assert.Equal(t, []string{"POST /bookings v1", "GET /courses v1"}, identities(r.ListAvailable(models.TierPremium)))
	assert.Equal(t, []string{
		"GET /analytics v1",
		"GET /analytics v2",
		"POST /bookings v1",
		"GET /courses v1",
	}, identities(r.ListAvailable(models.TierBusiness)))
	assert.Len(t, r.ListAvailable(models.TierEnterprise), 5)
	assert.Empty(t, r.ListAvailable(models.Tier("unknown")))
}

func TestRegistry_ListAvailableIsMonotonic(t *testing.T) {
	r := New()
	tiers := models.AllTiers()
	for i := 0; i < 40; i++ {
		tier := tiers[i%len(tiers)]
		require.NoError(t, r.Register(endpoint(fmt.Sprintf("/e%02d", i), "GET", "v1", tier)))
	}

	for i := 1; i < len(tiers); i++ {
		lower := r.ListAvailable(tiers[i-1])
		higher := r.ListAvailable(tiers[i])

		seen := make(map[string]bool, len(higher))
		for _, ep := range higher {
			seen[ep.Identity()] = true
		}
		for _, ep := range lower {
			assert.True(t, seen[ep.Identity()], "%s visible to %s but not %s", ep.Identity(), tiers[i-1], tiers[i])
		}
		assert.Greater(t, len(higher), len(lower))
	}
}

func TestRegistry_QuotaIsCopied(t *testing.T) {
	r := New()
	q := models.Quota{Limit: 5, Window: time.Second}
	ep := endpoint("/q", "GET", "v1", models.TierFree)
	ep.Quota = &q
	require.NoError(t, r.Register(ep))

	q.Limit = 500
	got, err := r.Resolve("/q", "GET", "v1")
	require.NoError(t, err)
	quota, ok := got.RateQuota()
	require.True(t, ok)
	assert.Equal(t, 5, quota.Limit)
}

func TestRegistry_ConcurrentResolveDuringRegistration(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(endpoint("/stable", "GET", "v1", models.TierFree)))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 16)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := r.Resolve("/stable", "GET", "v1"); err != nil {
					errs <- err
					return
				}
				_ = r.ListAvailable(models.TierEnterprise)
			}
		}()
	}

	for i := 0; i < 500; i++ {
		require.NoError(t, r.Register(endpoint(fmt.Sprintf("/dyn/%d", i), "GET", "v1", models.TierFree)))
		_, err := r.Resolve(fmt.Sprintf("/dyn/%d", i), "GET", "v1")
		require.NoError(t, err, "registration must be visible immediately")
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("resolve of stable endpoint failed during registration: %v", err)
	}
	assert.Equal(t, 501, r.Len())
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, compareVersions("v1", "v2"))
	assert.Equal(t, 1, compareVersions("v10", "v9"))
	assert.Equal(t, 0, compareVersions("v3", "v3"))
	assert.Equal(t, -1, compareVersions("v3", "alpha"))
	assert.Equal(t, 1, compareVersions("beta", "alpha"))
}
