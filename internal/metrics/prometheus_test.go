package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics()
	m.ObserveRequest("GET /courses v1", "", http.StatusOK, 15*time.Millisecond)
	m.ObserveRequest("GET /courses v1", "RateLimitExceeded", http.StatusTooManyRequests, time.Millisecond)
	m.IncRateLimited("free")
	m.IncInFlight()

	body := scrape(t, m.HTTPHandler())
	assert.Contains(t, body, `gateway_requests_total{code="OK",endpoint="GET /courses v1",status="200"} 1`)
	assert.Contains(t, body, `gateway_requests_total{code="RateLimitExceeded",endpoint="GET /courses v1",status="429"} 1`)
	assert.Contains(t, body, `gateway_rate_limited_total{tier="free"} 1`)
	assert.Contains(t, body, `gateway_requests_in_flight 1`)
	assert.Contains(t, body, `gateway_request_duration_seconds_count{endpoint="GET /courses v1"} 2`)

	m.DecInFlight()
	assert.Contains(t, scrape(t, m.HTTPHandler()), `gateway_requests_in_flight 0`)
}

func TestPrometheusMetrics_IndependentRegistries(t *testing.T) {
	a := NewPrometheusMetrics()
	b := NewPrometheusMetrics()
	a.IncRateLimited("free")

	assert.NotContains(t, scrape(t, b.HTTPHandler()), `gateway_rate_limited_total{tier="free"}`)
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	m.ObserveRequest("e", "", 200, time.Second)
	m.IncRateLimited("free")

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
