package httpapi

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/middleware"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// maxGatewayBody bounds request bodies forwarded to handlers.
const maxGatewayBody = 4 << 20

// latestVersion in the URL resolves the highest registered version.
const latestVersion = "latest"

// handleGateway serves ANY /api/{version}/*. The processor owns admission and
// dispatch; this only translates between HTTP and envelopes.
func (d *Dependencies) handleGateway(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if strings.EqualFold(version, latestVersion) {
		version = ""
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGatewayBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondWithErrorCode(w, http.StatusRequestEntityTooLarge, "PayloadTooLarge", "Request body too large")
			return
		}
		utils.RespondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	req := &models.RequestEnvelope{
		RequestID: middleware.GetRequestID(r.Context()),
		Path:      "/" + chi.URLParam(r, "*"),
		Method:    r.Method,
		Version:   version,
		Query:     r.URL.RawQuery,
		APIKey:    middleware.ExtractAPIKey(r),
		Headers:   r.Header.Clone(),
		Body:      body,
	}

	resp := d.Processor.Process(r.Context(), req)

	if resp.Error != nil && resp.Error.RateLimit != nil {
		setRateLimitHeaders(w.Header(), resp.Error.RateLimit, time.Now())
	}
	if err := utils.RespondWithJSON(w, resp.StatusCode, resp); err != nil {
		logging.Errorf("request %s: failed to write response: %v", resp.RequestID, err)
	}
}

// setRateLimitHeaders mirrors the rate-limit payload in standard headers.
// Retry-After is rounded up and never below one second.
func setRateLimitHeaders(h http.Header, rl *models.RateLimitError, now time.Time) {
	retry := int64(math.Ceil(rl.ResetAt.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	h.Set("Retry-After", strconv.FormatInt(retry, 10))
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
}
