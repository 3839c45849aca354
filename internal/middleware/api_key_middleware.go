package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// APIKeyRecordKey is the context key for storing the authenticated API key record
	APIKeyRecordKey ContextKey = "apiKeyRecord"
)

// ExtractAPIKey reads the caller's key from X-API-Key, falling back to an
// "Authorization: Bearer" header.
func ExtractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// APIKeyMiddleware validates API keys for protected routes and adds the key record to the request context
func APIKeyMiddleware(validator *auth.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := ExtractAPIKey(r)
			if apiKey == "" {
				utils.RespondWithErrorCode(w, http.StatusUnauthorized, "InvalidAPIKey", "Missing API key")
				return
			}

			keyRecord, err := validator.Validate(r.Context(), apiKey)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidAPIKey) {
					utils.RespondWithErrorCode(w, http.StatusUnauthorized, "InvalidAPIKey", "Invalid API key")
					return
				}
				logging.Errorf("api key validation failed: %v", err)
				utils.RespondWithErrorCode(w, http.StatusInternalServerError, "InternalError", "Error validating API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyRecordKey, keyRecord)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKeyRecord retrieves the API key record from the request context
func GetAPIKeyRecord(ctx context.Context) (*auth.APIKeyRecord, bool) {
	record, ok := ctx.Value(APIKeyRecordKey).(*auth.APIKeyRecord)
	return record, ok
}
