// Package upstream provides the handlers that gateway endpoints dispatch to.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

const (
	defaultUpstreamTimeout = 60 * time.Second
	maxResponseBytes       = 10 << 20
)

// Headers that describe a single connection, or that carry the caller's
// gateway credentials, are never forwarded.
var skipHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
	"Content-Length":      true,
	"Authorization":       true,
	"X-Api-Key":           true,
}

// HTTPHandler forwards requests to a downstream service over HTTP.
type HTTPHandler struct {
	name    string
	baseURL *url.URL
	client  *http.Client
	headers http.Header
}

// Option customizes an HTTPHandler.
type Option func(*HTTPHandler)

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) Option {
	return func(h *HTTPHandler) { h.client = c }
}

// WithHeader sets a header on every forwarded request, e.g. a service credential.
func WithHeader(name, value string) Option {
	return func(h *HTTPHandler) { h.headers.Set(name, value) }
}

// NewHTTPHandler creates a handler forwarding to baseURL. The request path is
// appended to the base URL's path.
func NewHTTPHandler(name, baseURL string, opts ...Option) (*HTTPHandler, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q: host is required", baseURL)
	}

	h := &HTTPHandler{
		name:    name,
		baseURL: u,
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = NewClient(defaultUpstreamTimeout)
	}
	return h, nil
}

// NewClient returns an HTTP client tuned for many concurrent upstream calls.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Name returns the name the handler was created with.
func (h *HTTPHandler) Name() string {
	return h.name
}

// BaseURL returns the upstream base URL.
func (h *HTTPHandler) BaseURL() string {
	return h.baseURL.String()
}

// Handle forwards req and returns a *models.HandlerResult for 2xx replies.
// Any other status is an error; 5xx and 429 replies and transport failures
// are reported as recoverable.
func (h *HTTPHandler) Handle(ctx context.Context, req *models.RequestEnvelope) (any, error) {
	target := *h.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + req.Path
	target.RawPath = ""
	target.RawQuery = req.Query

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range req.Headers {
		name = http.CanonicalHeaderKey(name)
		if skipHeaders[name] {
			continue
		}
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	for name, values := range h.headers {
		httpReq.Header[name] = values
	}
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	httpReq.Header.Set("X-Gateway-Version", req.Version)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("upstream unreachable: %s: %w", h.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("upstream unreachable: %s: failed to read response: %w", h.name, err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("upstream %s: %w (limit %d bytes)", h.name, ErrResponseTooLarge, maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Upstream: h.name, StatusCode: resp.StatusCode, Body: respBody}
	}

	return &models.HandlerResult{
		StatusCode: resp.StatusCode,
		Data:       decodeBody(resp.Header.Get("Content-Type"), respBody),
	}, nil
}

// Close releases idle connections.
func (h *HTTPHandler) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// ErrResponseTooLarge is returned when a reply exceeds maxResponseBytes.
// Partial replies are never passed on.
var ErrResponseTooLarge = errors.New("response too large")

// StatusError is returned when the upstream answers with a non-2xx status.
// Its body is kept for server-side logs and is never sent to clients.
type StatusError struct {
	Upstream   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d from %s", e.StatusCode, e.Upstream)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// decodeBody keeps JSON replies as raw JSON so they are embedded verbatim in
// the response envelope; anything else becomes a string.
func decodeBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") && json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
