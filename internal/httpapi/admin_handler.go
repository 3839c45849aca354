package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/metrics"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/queue"
	"github.com/Chromeox/CourseScout-sub015/internal/ratelimit"
	"github.com/Chromeox/CourseScout-sub015/internal/registry"
	"github.com/Chromeox/CourseScout-sub015/internal/upstream"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// TokenRequest exchanges a service token for an admin JWT.
type TokenRequest struct {
	ServiceName string `json:"service_name"`
	Token       string `json:"token"`
}

// TokenResponse carries a signed admin JWT.
type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleAdminToken handles POST /admin/auth/token
func (d *Dependencies) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.ServiceName == "" || req.Token == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "service_name and token are required")
		return
	}

	token, expiresAt, err := auth.GenerateAdminJWTWithToken(r.Context(), req.ServiceName, req.Token, d.AdminStore, d.Config)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		logging.Errorf("admin token exchange for %s failed: %v", req.ServiceName, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}

// handleAdminMetrics handles GET /admin/metrics?period=hour|day|week
func (d *Dependencies) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	period, err := metrics.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]interface{}{
		"summary":            d.Aggregator.GetMetrics(period),
		"endpoints":          d.Aggregator.EndpointMetrics(period),
		"active_connections": d.Aggregator.ActiveConnections(),
		"registered":         d.Registry.Len(),
	}
	if d.Telemetry != nil {
		t := map[string]interface{}{"sink": d.Telemetry.Sink.Stats()}
		if n, err := d.Telemetry.Worker.QueueLength(r.Context()); err == nil {
			t["queue_length"] = n
		}
		resp["telemetry"] = t
	}
	if d.LastUsed != nil {
		resp["last_used"] = map[string]interface{}{
			"pending": d.LastUsed.Pending(),
			"flushed": d.LastUsed.Flushed(),
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}

// handleAdminListEndpoints handles GET /admin/endpoints
func (d *Dependencies) handleAdminListEndpoints(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": toEndpointResponses(d.Registry.All(), true),
	})
}

// RegisterEndpointRequest registers an endpoint at runtime. Exactly one of
// Upstream or Static must be set.
type RegisterEndpointRequest struct {
	Path         string      `json:"path"`
	Method       string      `json:"method"`
	Version      string      `json:"version"`
	RequiredTier string      `json:"required_tier"`
	Upstream     string      `json:"upstream,omitempty"`
	Static       interface{} `json:"static,omitempty"`
	TimeoutMs    int64       `json:"timeout_ms,omitempty"`
	Idempotent   *bool       `json:"idempotent,omitempty"`
	Description  string      `json:"description,omitempty"`
	Quota        *QuotaBody  `json:"quota,omitempty"`
	Replace      bool        `json:"replace,omitempty"` // replace an existing endpoint instead of failing
}

func (req *RegisterEndpointRequest) routeConfig() config.RouteConfig {
	path := registry.NormalizePath(req.Path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	rc := config.RouteConfig{
		Path:         path,
		Method:       req.Method,
		Version:      req.Version,
		RequiredTier: req.RequiredTier,
		Upstream:     req.Upstream,
		Static:       req.Static,
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
		Idempotent:   req.Idempotent,
		Description:  req.Description,
	}
	if req.Quota != nil {
		rc.Quota = &models.Quota{Limit: req.Quota.Limit, Window: time.Duration(req.Quota.WindowMs) * time.Millisecond}
	}
	return rc
}

// handleAdminRegisterEndpoint handles POST /admin/endpoints
func (d *Dependencies) handleAdminRegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req RegisterEndpointRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	rc := req.routeConfig()
	if err := rc.Normalize(); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ep, err := upstream.EndpointFromRoute(rc, d.UpstreamClient)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Replace {
		err = d.Registry.Upsert(ep)
	} else {
		err = d.Registry.Register(ep)
	}
	switch {
	case errors.Is(err, registry.ErrDuplicateEndpoint):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, registry.ErrInvalidEndpoint):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to register endpoint")
		return
	}

	registered, err := d.Registry.Resolve(ep.Path, ep.Method, ep.Version)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Endpoint vanished after registration")
		return
	}
	logging.Infof("admin: registered endpoint %s", registered.Identity())
	utils.RespondWithJSON(w, http.StatusCreated, toEndpointResponse(registered, true))
}

// handleAdminDeregisterEndpoint handles DELETE /admin/endpoints?path=&method=&version=
func (d *Dependencies) handleAdminDeregisterEndpoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path, method, version := q.Get("path"), q.Get("method"), q.Get("version")
	if path == "" || version == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "path and version are required")
		return
	}
	if method == "" {
		method = http.MethodGet
	}

	if !d.Registry.Deregister(path, method, version) {
		utils.RespondWithError(w, http.StatusNotFound, "Endpoint not found")
		return
	}
	logging.Infof("admin: deregistered endpoint %s %s %s", strings.ToUpper(method), path, version)
	w.WriteHeader(http.StatusNoContent)
}

// RateLimitUsageResponse is one window as seen by the limiter.
type RateLimitUsageResponse struct {
	Key         string    `json:"key"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"window_start"`
	ResetAt     time.Time `json:"reset_at"`
}

// rateLimitKey builds the window key from key_id and an optional endpoint
// identity such as "GET /courses v1".
func rateLimitKey(r *http.Request) (string, bool) {
	q := r.URL.Query()
	keyID := q.Get("key_id")
	if keyID == "" {
		return "", false
	}
	if endpoint := q.Get("endpoint"); endpoint != "" {
		return ratelimit.EndpointKey(keyID, endpoint), true
	}
	return ratelimit.GlobalKey(keyID), true
}

// handleRateLimitUsage handles GET /admin/ratelimit?key_id=&endpoint=
func (d *Dependencies) handleRateLimitUsage(w http.ResponseWriter, r *http.Request) {
	key, ok := rateLimitKey(r)
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "key_id is required")
		return
	}
	u, err := d.Checker.Usage(r.Context(), key)
	if err != nil {
		logging.Errorf("admin: rate limit usage for %s: %v", key, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read rate limit usage")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, RateLimitUsageResponse{
		Key:         key,
		Count:       u.Count,
		Limit:       u.Limit,
		WindowStart: u.WindowStart,
		ResetAt:     u.ResetAt,
	})
}

// handleRateLimitReset handles DELETE /admin/ratelimit?key_id=&endpoint=
func (d *Dependencies) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	key, ok := rateLimitKey(r)
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "key_id is required")
		return
	}
	if err := d.Checker.Reset(r.Context(), key); err != nil {
		logging.Errorf("admin: rate limit reset for %s: %v", key, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to reset rate limit")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TierRequest assigns a tier to a tenant.
type TierRequest struct {
	Tier string `json:"tier"`
}

// handleGetTier handles GET /admin/tiers/{tenant}
func (d *Dependencies) handleGetTier(w http.ResponseWriter, r *http.Request) {
	if d.Tiers == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Billing tier directory is not enabled")
		return
	}
	tenant := chi.URLParam(r, "tenant")
	tier, ok := d.Tiers.TierFor(tenant)
	if !ok {
		utils.RespondWithError(w, http.StatusNotFound, "No tier assigned")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":    tenant,
		"tier":      tier,
		"synced_at": d.Tiers.SyncedAt(),
	})
}

// handleSetTier handles PUT /admin/tiers/{tenant}
func (d *Dependencies) handleSetTier(w http.ResponseWriter, r *http.Request) {
	if d.Tiers == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Billing tier directory is not enabled")
		return
	}
	var req TierRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	tier, err := models.ParseTier(req.Tier)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenant := chi.URLParam(r, "tenant")
	if err := d.Tiers.SetTier(r.Context(), tenant, tier); err != nil {
		logging.Errorf("admin: set tier for %s: %v", tenant, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to set tier")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"tenant": tenant, "tier": tier})
}

// DeadLetterResponse is a usage record that exhausted its retries.
type DeadLetterResponse struct {
	ID        string              `json:"id"`
	Error     string              `json:"error"`
	Timestamp time.Time           `json:"timestamp"`
	Record    *models.UsageRecord `json:"record"`
}

// handleDeadLetters handles GET /admin/telemetry/dead-letters?limit=
func (d *Dependencies) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if d.Telemetry == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Usage telemetry is not enabled")
		return
	}
	limit := intParam(r, "limit", 100, 1000)

	items, err := d.Telemetry.Worker.DeadLetterItems(r.Context(), limit)
	if err != nil {
		logging.Errorf("admin: list dead letters: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list dead letters")
		return
	}
	out := make([]DeadLetterResponse, 0, len(items))
	for _, item := range items {
		out = append(out, DeadLetterResponse{ID: item.ID, Error: item.Error, Timestamp: item.Timestamp, Record: item.Item})
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"items": out})
}

// handleRetryDeadLetter handles POST /admin/telemetry/dead-letters/{id}/retry
func (d *Dependencies) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if d.Telemetry == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Usage telemetry is not enabled")
		return
	}
	err := d.Telemetry.Worker.RetryDeadLetterItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Dead letter not found")
			return
		}
		logging.Errorf("admin: retry dead letter: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retry dead letter")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleUsage handles GET /admin/usage?tenant=&from=&to=&limit=
func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenant := q.Get("tenant")
	if tenant == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid from format (use RFC3339)")
			return
		}
		start = t
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid to format (use RFC3339)")
			return
		}
		end = t
	}

	records, err := d.Usage.ListByTenant(r.Context(), tenant, start, end, intParam(r, "limit", 100, 1000))
	if err != nil {
		logging.Errorf("admin: list usage for %s: %v", tenant, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list usage")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tenant":  tenant,
		"from":    start,
		"to":      end,
		"records": records,
	})
}

// intParam reads a positive integer query parameter, clamped to max.
func intParam(r *http.Request, name string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
