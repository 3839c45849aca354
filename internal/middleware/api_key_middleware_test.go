package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

func newTestValidator() *auth.Validator {
	store := auth.NewInMemoryAPIKeyStore()
	store.Add("demo-key", auth.APIKeyRecord{KeyID: "demo-key-id", TenantID: "tenant-1", Tier: models.TierPremium})
	store.Add("old-key", auth.APIKeyRecord{KeyID: "old-key-id", TenantID: "tenant-1", Tier: models.TierPremium,
		ExpiresAt: time.Now().Add(-time.Hour)})
	store.Add("revoked-key", auth.APIKeyRecord{KeyID: "revoked-key-id", TenantID: "tenant-1", Tier: models.TierFree, Revoked: true})
	return auth.NewValidator(store)
}

func TestAPIKeyMiddleware_Success(t *testing.T) {
	middleware := APIKeyMiddleware(newTestValidator())

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		record, ok := GetAPIKeyRecord(r.Context())
		if !ok {
			t.Error("API key record not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if record.KeyID != "demo-key-id" {
			t.Errorf("Unexpected API key ID: %s", record.KeyID)
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware(nextHandler)

	t.Run("with X-API-Key header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/gateway/endpoints", nil)
		req.Header.Set("X-API-Key", "demo-key")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})

	t.Run("with Bearer token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/gateway/endpoints", nil)
		req.Header.Set("Authorization", "Bearer demo-key")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}

func TestAPIKeyMiddleware_Rejections(t *testing.T) {
	middleware := APIKeyMiddleware(newTestValidator())
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"missing key", "", ""},
		{"unknown key", "X-API-Key", "nope"},
		{"expired key", "X-API-Key", "old-key"},
		{"revoked key", "Authorization", "Bearer revoked-key"},
		{"basic auth is not a key", "Authorization", "Basic ZGVtbzprZXk="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/gateway/endpoints", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), "InvalidAPIKey") {
				t.Errorf("Expected InvalidAPIKey code, got %s", w.Body.String())
			}
		})
	}
}

type failingStore struct{}

func (failingStore) Lookup(ctx context.Context, key string) (*auth.APIKeyRecord, error) {
	return nil, errors.New("connection refused")
}

func TestAPIKeyMiddleware_StoreFailure(t *testing.T) {
	handler := APIKeyMiddleware(auth.NewValidator(failingStore{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Next handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/gateway/endpoints", nil)
	req.Header.Set("X-API-Key", "demo-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("Store error leaked to client: %s", w.Body.String())
	}
}

func TestExtractAPIKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if got := ExtractAPIKey(req); got != "" {
		t.Errorf("Expected empty key, got %q", got)
	}

	req.Header.Set("Authorization", "Bearer from-bearer")
	if got := ExtractAPIKey(req); got != "from-bearer" {
		t.Errorf("Expected bearer key, got %q", got)
	}

	req.Header.Set("X-API-Key", "from-header")
	if got := ExtractAPIKey(req); got != "from-header" {
		t.Errorf("X-API-Key should take precedence, got %q", got)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if seen != "caller-id" || w.Header().Get(RequestIDHeader) != "caller-id" {
		t.Errorf("Expected caller id to be kept, got %q / %q", seen, w.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest("GET", "/", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if len(seen) != 36 {
		t.Errorf("Expected a generated UUID, got %q", seen)
	}
	if w.Header().Get(RequestIDHeader) != seen {
		t.Errorf("Response header %q does not match %q", w.Header().Get(RequestIDHeader), seen)
	}
}
