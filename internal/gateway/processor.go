// Package gateway runs the admission pipeline for one request: key
// validation, endpoint resolution, tier authorization, rate limiting and
// dispatch. Every request ends in a ResponseEnvelope; failures are mapped to
// a Code and never escape as Go errors.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/metrics"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/ratelimit"
	"github.com/Chromeox/CourseScout-sub015/internal/registry"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// unmatchedEndpoint labels outcomes of requests that never resolved an endpoint.
const unmatchedEndpoint = "unmatched"

// KeyValidator resolves raw API keys.
type KeyValidator interface {
	Validate(ctx context.Context, key string) (*auth.APIKeyRecord, error)
}

// EndpointResolver looks up routes.
type EndpointResolver interface {
	Resolve(path, method, version string) (*registry.Endpoint, error)
}

// RateChecker admits or throttles a request.
type RateChecker interface {
	CheckAndIncrement(ctx context.Context, keyID string, tier models.Tier, endpoint ratelimit.Endpoint) (ratelimit.Decision, error)
}

// OutcomeRecorder receives one outcome per processed request and tracks
// requests in flight.
type OutcomeRecorder interface {
	RecordOutcome(endpoint string, success bool, latencyMs float64)
	Begin()
	End()
}

// UsageRecorder accepts usage records without blocking.
type UsageRecorder interface {
	Record(rec *models.UsageRecord)
}

// Processor is safe for concurrent use.
type Processor struct {
	validator KeyValidator
	routes    EndpointResolver
	limiter   RateChecker

	outcomes OutcomeRecorder
	metrics  metrics.Metrics
	usage    UsageRecorder

	defaultTimeout time.Duration
	now            func() time.Time

	telemetryLog rate.Sometimes
}

// Option configures a Processor.
type Option func(*Processor)

// WithDefaultTimeout bounds dispatch for endpoints without their own timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.defaultTimeout = d
		}
	}
}

// WithOutcomeRecorder sets the aggregator fed after every request.
func WithOutcomeRecorder(r OutcomeRecorder) Option {
	return func(p *Processor) { p.outcomes = r }
}

// WithMetrics sets the exporter fed after every request.
func WithMetrics(m metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithUsageRecorder sets where usage records are sent.
func WithUsageRecorder(u UsageRecorder) Option {
	return func(p *Processor) { p.usage = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func NewProcessor(validator KeyValidator, routes EndpointResolver, limiter RateChecker, opts ...Option) *Processor {
	p := &Processor{
		validator:      validator,
		routes:         routes,
		limiter:        limiter,
		metrics:        metrics.NewNoopMetrics(),
		defaultTimeout: 10 * time.Second,
		now:            time.Now,
		telemetryLog:   rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// outcome is what the pipeline learned about one request.
type outcome struct {
	stage    Stage
	record   *auth.APIKeyRecord
	endpoint *registry.Endpoint
	status   int
	data     any
	err      *Error
}

// Process runs req through the pipeline. It always returns an envelope
// carrying the request id and elapsed time.
func (p *Processor) Process(ctx context.Context, req *models.RequestEnvelope) *models.ResponseEnvelope {
	start := p.now()
	if req.RequestID == "" {
		withID := *req
		withID.RequestID = uuid.NewString()
		req = &withID
	}

	p.begin()
	defer p.end()

	out := p.run(ctx, req)
	elapsed := p.now().Sub(start)

	resp := &models.ResponseEnvelope{
		StatusCode:       out.status,
		Data:             out.data,
		RequestID:        req.RequestID,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
	if out.err != nil {
		resp.StatusCode = out.err.Code.HTTPStatus()
		resp.Data = nil
		resp.Error = out.err.Body()
	}

	p.report(req, out, resp, elapsed)
	return resp
}

func (p *Processor) run(ctx context.Context, req *models.RequestEnvelope) outcome {
	out := outcome{stage: StageReceived}

	rec, err := p.validator.Validate(ctx, req.APIKey)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAPIKey) {
			return out.fail(CodeInvalidAPIKey, "invalid or expired API key", false, err)
		}
		logging.Errorf("request %s: api key lookup failed: %v", req.RequestID, err)
		return out.fail(CodeInternalError, "internal error", true, err)
	}
	out.record = rec
	out.stage = StageKeyValidated

	ep, err := p.routes.Resolve(req.Path, req.Method, req.Version)
	if err != nil {
		var nf *registry.NotFoundError
		if errors.As(err, &nf) {
			return out.fail(CodeEndpointNotFound, nf.Error(), false, err)
		}
		return out.fail(CodeInternalError, "internal error", true, err)
	}
	out.endpoint = ep
	out.stage = StageEndpointResolved

	if !ep.VisibleTo(rec.Tier) {
		msg := fmt.Sprintf("endpoint requires %s tier or higher", ep.RequiredTier)
		return out.fail(CodeInsufficientTier, msg, false, nil)
	}
	out.stage = StageTierAuthorized

	if _, err := p.limiter.CheckAndIncrement(ctx, rec.KeyID, rec.Tier, ep); err != nil {
		var exceeded *ratelimit.ExceededError
		if errors.As(err, &exceeded) {
			p.metrics.IncRateLimited(rec.Tier.String())
			out = out.fail(CodeRateLimitExceeded, "rate limit exceeded", true, err)
			out.err.RateLimit = &models.RateLimitError{
				Limit:    exceeded.Limit,
				WindowMs: exceeded.Window.Milliseconds(),
				ResetAt:  exceeded.ResetAt,
			}
			return out
		}
		logging.Errorf("request %s: rate limit check failed: %v", req.RequestID, err)
		return out.fail(CodeInternalError, "internal error", true, err)
	}
	out.stage = StageRateLimitChecked

	return p.dispatch(ctx, req, out)
}

func (o outcome) fail(code Code, msg string, retryable bool, cause error) outcome {
	o.err = &Error{Code: code, Message: msg, Retryable: retryable, Stage: o.stage, Err: cause}
	return o
}

type dispatchResult struct {
	data any
	err  error
}

// dispatch calls the handler under a deadline. A handler that overruns is
// abandoned: its context is cancelled and whatever it returns later is dropped.
func (p *Processor) dispatch(ctx context.Context, req *models.RequestEnvelope, out outcome) outcome {
	ep := out.endpoint
	timeout := p.defaultTimeout
	if ep.Timeout > 0 && ep.Timeout < timeout {
		timeout = ep.Timeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out.stage = StageDispatched
	done := make(chan dispatchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- dispatchResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		data, err := ep.Handler.Handle(dctx, req)
		done <- dispatchResult{data: data, err: err}
	}()

	var res dispatchResult
	select {
	case res = <-done:
	case <-dctx.Done():
		return out.timeout(req, timeout, dctx.Err())
	}

	if res.err != nil {
		if dctx.Err() != nil && errors.Is(res.err, dctx.Err()) {
			return out.timeout(req, timeout, res.err)
		}
		logging.Errorf("request %s: handler %s failed: %v", req.RequestID, ep.Identity(), res.err)
		retryable := ep.Idempotent && utils.IsRecoverableError(res.err)
		return out.fail(CodeHandlerError, "upstream handler failed", retryable, res.err)
	}

	out.stage = StageCompleted
	out.status = http.StatusOK
	out.data = res.data
	if hr, ok := res.data.(*models.HandlerResult); ok && hr != nil {
		out.data = hr.Data
		if hr.StatusCode >= 200 && hr.StatusCode < 300 {
			out.status = hr.StatusCode
		}
	}
	return out
}

func (o outcome) timeout(req *models.RequestEnvelope, limit time.Duration, cause error) outcome {
	logging.Warningf("request %s: handler %s exceeded %s: %v", req.RequestID, o.endpoint.Identity(), limit, cause)
	return o.fail(CodeTimeoutError, fmt.Sprintf("handler did not respond within %s", limit), true, cause)
}

func (p *Processor) begin() {
	p.safely("begin", func() {
		p.metrics.IncInFlight()
		if p.outcomes != nil {
			p.outcomes.Begin()
		}
	})
}

func (p *Processor) end() {
	p.safely("end", func() {
		p.metrics.DecInFlight()
		if p.outcomes != nil {
			p.outcomes.End()
		}
	})
}

// report feeds telemetry. Nothing it does can affect the response.
func (p *Processor) report(req *models.RequestEnvelope, out outcome, resp *models.ResponseEnvelope, elapsed time.Duration) {
	endpoint := unmatchedEndpoint
	if out.endpoint != nil {
		endpoint = out.endpoint.Identity()
	}
	success := out.err == nil
	code := ""
	if resp.Error != nil {
		code = resp.Error.Code
	}
	latencyMs := float64(elapsed) / float64(time.Millisecond)

	p.safely("metrics", func() {
		if p.outcomes != nil {
			p.outcomes.RecordOutcome(endpoint, success, latencyMs)
		}
		p.metrics.ObserveRequest(endpoint, code, resp.StatusCode, elapsed)
	})

	if p.usage == nil {
		return
	}
	p.safely("usage", func() {
		rec := &models.UsageRecord{
			ID:             uuid.New(),
			RequestID:      req.RequestID,
			Path:           req.Path,
			Method:         req.Method,
			Version:        req.Version,
			StatusCode:     resp.StatusCode,
			ErrorCode:      code,
			Stage:          out.stage.String(),
			ResponseTimeMS: resp.ProcessingTimeMs,
			CreatedAt:      p.now().UTC(),
		}
		if out.record != nil {
			rec.TenantID = out.record.TenantID
			rec.APIKeyID = out.record.KeyID
			rec.Tier = out.record.Tier
		}
		if out.endpoint != nil {
			rec.Path, rec.Method, rec.Version = out.endpoint.Path, out.endpoint.Method, out.endpoint.Version
		}
		p.usage.Record(rec)
	})
}

// safely runs a telemetry call, swallowing panics with a throttled log line.
func (p *Processor) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.telemetryLog.Do(func() {
				logging.Warningf("telemetry %s failed: %v", what, r)
			})
		}
	}()
	fn()
}
