package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

const apiKeyColumns = `id, tenant_id, name, key_hash, tier, revoked, expires_at, last_used_at, created_at, updated_at`

// APIKeyRepository reads API keys with an LRU cache in front of Postgres.
// Revocations made elsewhere become visible once the cache entry expires.
type APIKeyRepository struct {
	db    *DB
	cache *LRUCache[*models.APIKey]
}

// NewAPIKeyRepository creates a new API key repository
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{
		db:    db,
		cache: db.apiKeyCache,
	}
}

// GetByHash retrieves an API key by its hash (with caching). Revoked and
// expired keys are returned too; callers decide what is usable.
func (r *APIKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	if cached, found := r.cache.Get(keyHash); found {
		return cached, nil
	}

	var key models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	err := r.db.conn.GetContext(ctx, &key, query, keyHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}

	r.cache.Set(keyHash, &key)
	return &key, nil
}

// GetByID retrieves an API key by ID
func (r *APIKeyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	if err := r.db.conn.GetContext(ctx, &key, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return &key, nil
}

// Create inserts a key. It is used for seeding and tests; production keys
// are issued by the account service.
func (r *APIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, tenant_id, name, key_hash, tier, revoked, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.Tier, key.Revoked, key.ExpiresAt,
	).Scan(&key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	r.cache.Delete(key.KeyHash)
	return nil
}

// Revoke marks a key revoked and drops it from the cache.
func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	var keyHash string
	query := `UPDATE api_keys SET revoked = TRUE, updated_at = NOW() WHERE id = $1 RETURNING key_hash`

	if err := r.db.conn.GetContext(ctx, &keyHash, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAPIKeyNotFound
		}
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	r.cache.Delete(keyHash)
	return nil
}

// List returns API keys for a tenant, newest first.
func (r *APIKeyRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var keys []*models.APIKey
	if err := r.db.conn.SelectContext(ctx, &keys, query, tenantID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// UpdateLastUsed stamps last_used_at for many keys in one statement. A stamp
// never moves backwards.
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, uses map[uuid.UUID]time.Time) error {
	if len(uses) == 0 {
		return nil
	}

	ids := make([]string, 0, len(uses))
	stamps := make([]string, 0, len(uses))
	for id, at := range uses {
		ids = append(ids, id.String())
		stamps = append(stamps, at.UTC().Format(time.RFC3339Nano))
	}

	query := `
		UPDATE api_keys AS k
		SET last_used_at = u.at
		FROM (SELECT unnest($1::uuid[]) AS id, unnest($2::timestamptz[]) AS at) AS u
		WHERE k.id = u.id AND (k.last_used_at IS NULL OR k.last_used_at < u.at)
	`

	if _, err := r.db.conn.ExecContext(ctx, query, pq.Array(ids), pq.Array(stamps)); err != nil {
		return fmt.Errorf("failed to update last_used_at: %w", err)
	}
	return nil
}

// InvalidateCache removes an API key from the cache
func (r *APIKeyRepository) InvalidateCache(keyHash string) {
	r.cache.Delete(keyHash)
}
