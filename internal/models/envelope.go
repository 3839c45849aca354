package models

import (
	"strings"
	"time"
)

// RequestEnvelope is the transport-independent view of one gateway request.
// It is built once by the transport and never modified afterwards.
type RequestEnvelope struct {
	RequestID string              `json:"requestId"`
	Path      string              `json:"path"`
	Method    string              `json:"method"`
	Version   string              `json:"version"`
	Query     string              `json:"query,omitempty"` // raw query string, without "?"
	APIKey    string              `json:"-"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Body      []byte              `json:"body,omitempty"`
}

// Header returns the first value of the named header, matching names
// case-insensitively the way net/http does.
func (r *RequestEnvelope) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	if v := r.Headers[name]; len(v) > 0 {
		return v[0]
	}
	for k, v := range r.Headers {
		if len(v) > 0 && strings.EqualFold(k, name) {
			return v[0]
		}
	}
	return ""
}

// ResponseEnvelope is the uniform reply for every request, successful or not.
type ResponseEnvelope struct {
	StatusCode       int        `json:"statusCode"`
	Data             any        `json:"data"`
	RequestID        string     `json:"requestId"`
	ProcessingTimeMs int64      `json:"processingTimeMs"`
	Error            *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes why a request failed.
type ErrorBody struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
	RateLimit *RateLimitError `json:"rateLimit,omitempty"`
}

// RateLimitError is the backoff payload attached to throttled responses.
type RateLimitError struct {
	Limit    int       `json:"limit"`
	WindowMs int64     `json:"windowMs"`
	ResetAt  time.Time `json:"resetAt"`
}

// HandlerResult lets a handler pick the success status and payload written to
// the client. Handlers that return any other value are answered with 200.
type HandlerResult struct {
	StatusCode int
	Data       any
}
