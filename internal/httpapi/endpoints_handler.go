package httpapi

import (
	"net/http"

	"github.com/Chromeox/CourseScout-sub015/internal/middleware"
	"github.com/Chromeox/CourseScout-sub015/internal/registry"
	"github.com/Chromeox/CourseScout-sub015/internal/upstream"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// EndpointResponse describes a registered endpoint.
type EndpointResponse struct {
	Path         string     `json:"path"`
	Method       string     `json:"method"`
	Version      string     `json:"version"`
	RequiredTier string     `json:"required_tier"`
	Description  string     `json:"description,omitempty"`
	Quota        *QuotaBody `json:"quota,omitempty"`
	TimeoutMs    int64      `json:"timeout_ms,omitempty"`
	Idempotent   bool       `json:"idempotent"`
	Upstream     string     `json:"upstream,omitempty"` // admin listing only
}

// QuotaBody is a quota on the wire.
type QuotaBody struct {
	Limit    int   `json:"limit"`
	WindowMs int64 `json:"window_ms"`
}

func toEndpointResponse(ep *registry.Endpoint, withUpstream bool) EndpointResponse {
	resp := EndpointResponse{
		Path:         ep.Path,
		Method:       ep.Method,
		Version:      ep.Version,
		RequiredTier: ep.RequiredTier.String(),
		Description:  ep.Description,
		TimeoutMs:    ep.Timeout.Milliseconds(),
		Idempotent:   ep.Idempotent,
	}
	if q, ok := ep.RateQuota(); ok {
		resp.Quota = &QuotaBody{Limit: q.Limit, WindowMs: q.Window.Milliseconds()}
	}
	if withUpstream {
		switch h := ep.Handler.(type) {
		case *upstream.HTTPHandler:
			resp.Upstream = h.BaseURL()
		case *upstream.StaticHandler:
			resp.Upstream = "static"
		}
	}
	return resp
}

func toEndpointResponses(eps []*registry.Endpoint, withUpstream bool) []EndpointResponse {
	out := make([]EndpointResponse, 0, len(eps))
	for _, ep := range eps {
		out = append(out, toEndpointResponse(ep, withUpstream))
	}
	return out
}

// handleAvailableEndpoints handles GET /gateway/endpoints for the caller's tier.
func (d *Dependencies) handleAvailableEndpoints(w http.ResponseWriter, r *http.Request) {
	record, ok := middleware.GetAPIKeyRecord(r.Context())
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Missing API key")
		return
	}

	resp := map[string]interface{}{
		"tier":      record.Tier,
		"endpoints": toEndpointResponses(d.Registry.ListAvailable(record.Tier), false),
	}
	if q, ok := d.Checker.Quota(record.Tier); ok {
		resp["quota"] = QuotaBody{Limit: q.Limit, WindowMs: q.Window.Milliseconds()}
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /health; unhealthy reports are served with 503.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := d.Aggregator.HealthCheck(r.Context())
	status := http.StatusOK
	if !health.IsHealthy {
		status = http.StatusServiceUnavailable
	}
	utils.RespondWithJSON(w, status, health)
}
