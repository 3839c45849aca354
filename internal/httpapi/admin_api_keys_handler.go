package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/storage"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// APIKeyAdmin is the part of storage.APIKeyRepository used by the admin API.
// Keys are issued by the account service; the gateway can only inspect and
// revoke them.
type APIKeyAdmin interface {
	List(ctx context.Context, tenantID string, limit, offset int) ([]*models.APIKey, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID) error
}

// UsageQuery is the read side of storage.UsageRepository.
type UsageQuery interface {
	ListByTenant(ctx context.Context, tenantID string, start, end time.Time, limit int) ([]*models.UsageRecord, error)
}

// AdminAPIKeysHandler handles API key inspection endpoints
type AdminAPIKeysHandler struct {
	keys APIKeyAdmin
}

// NewAdminAPIKeysHandler creates a new admin API keys handler
func NewAdminAPIKeysHandler(keys APIKeyAdmin) *AdminAPIKeysHandler {
	return &AdminAPIKeysHandler{keys: keys}
}

// APIKeyResponse represents an API key response (never the hash)
type APIKeyResponse struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	Name       string  `json:"name"`
	Tier       string  `json:"tier"`
	Revoked    bool    `json:"revoked"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// List handles GET /admin/keys?tenant=&page=&page_size=
func (h *AdminAPIKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "tenant is required")
		return
	}

	page := intParam(r, "page", 1, 1<<20)
	pageSize := intParam(r, "page_size", 20, 100)
	offset := (page - 1) * pageSize

	keys, err := h.keys.List(r.Context(), tenant, pageSize, offset)
	if err != nil {
		logging.Errorf("admin: list keys for %s: %v", tenant, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}

	responses := make([]APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, toAPIKeyResponse(key))
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"items":     responses,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetByID handles GET /admin/keys/{id}
func (h *AdminAPIKeysHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid API key ID format")
		return
	}

	apiKey, err := h.keys.GetByID(r.Context(), keyID)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "API key not found")
			return
		}
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get API key")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, toAPIKeyResponse(apiKey))
}

// Revoke handles DELETE /admin/keys/{id}
func (h *AdminAPIKeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid API key ID format")
		return
	}

	if err := h.keys.Revoke(r.Context(), keyID); err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "API key not found")
			return
		}
		logging.Errorf("admin: revoke key %s: %v", keyID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to revoke API key")
		return
	}

	logging.Infof("admin: revoked API key %s", keyID)
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "API key revoked",
		"id":      keyID.String(),
	})
}

func toAPIKeyResponse(key *models.APIKey) APIKeyResponse {
	resp := APIKeyResponse{
		ID:        key.ID.String(),
		TenantID:  key.TenantID,
		Name:      key.Name,
		Tier:      key.Tier.String(),
		Revoked:   key.Revoked,
		CreatedAt: key.CreatedAt.Format(time.RFC3339),
		UpdatedAt: key.UpdatedAt.Format(time.RFC3339),
	}
	if key.ExpiresAt != nil {
		s := key.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	if key.LastUsedAt != nil {
		s := key.LastUsedAt.Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}
