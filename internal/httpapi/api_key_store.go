package httpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/storage"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// APIKeyByHash is the read side of storage.APIKeyRepository.
type APIKeyByHash interface {
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
}

// DatabaseAPIKeyStore implements auth.APIKeyStore using the database repository
type DatabaseAPIKeyStore struct {
	repo APIKeyByHash
}

// NewDatabaseAPIKeyStore creates a new database-backed API key store
func NewDatabaseAPIKeyStore(repo APIKeyByHash) *DatabaseAPIKeyStore {
	return &DatabaseAPIKeyStore{
		repo: repo,
	}
}

// Lookup finds an API key by its plaintext value and returns an auth.APIKeyRecord
func (s *DatabaseAPIKeyStore) Lookup(ctx context.Context, plaintextKey string) (*auth.APIKeyRecord, error) {
	apiKey, err := s.repo.GetByHash(ctx, utils.HashString(plaintextKey))
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to lookup API key: %w", err)
	}

	record := &auth.APIKeyRecord{
		KeyID:    apiKey.ID.String(),
		TenantID: apiKey.TenantID,
		Tier:     apiKey.Tier,
		Revoked:  apiKey.Revoked,
	}
	if apiKey.ExpiresAt != nil {
		record.ExpiresAt = *apiKey.ExpiresAt
	}
	return record, nil
}
