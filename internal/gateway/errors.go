package gateway

import (
	"fmt"
	"net/http"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// Code classifies a failed request.
type Code string

const (
	CodeInvalidAPIKey     Code = "InvalidAPIKey"
	CodeEndpointNotFound  Code = "EndpointNotFound"
	CodeInsufficientTier  Code = "InsufficientTier"
	CodeRateLimitExceeded Code = "RateLimitExceeded"
	CodeHandlerError      Code = "HandlerError"
	CodeTimeoutError      Code = "TimeoutError"
	CodeInternalError     Code = "InternalError"
)

// HTTPStatus maps a code to the status written to clients.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case CodeEndpointNotFound:
		return http.StatusNotFound
	case CodeInsufficientTier:
		return http.StatusForbidden
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeHandlerError:
		return http.StatusBadGateway
	case CodeTimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a pipeline failure. Message is safe to show to clients; Err holds
// the internal cause and is only logged.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Stage     Stage
	RateLimit *models.RateLimitError
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Code, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Code, e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Body is the client-facing form of the error.
func (e *Error) Body() *models.ErrorBody {
	return &models.ErrorBody{
		Code:      string(e.Code),
		Message:   e.Message,
		Retryable: e.Retryable,
		RateLimit: e.RateLimit,
	}
}
