package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
)

// adminTokenRow mirrors the admin_tokens table.
type adminTokenRow struct {
	ID          uuid.UUID      `db:"id"`
	ServiceName string         `db:"service_name"`
	TokenHash   string         `db:"token_hash"`
	Roles       pq.StringArray `db:"roles"`
	Enabled     bool           `db:"enabled"`
	ExpiresAt   *time.Time     `db:"expires_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// AdminTokenRepository serves admin service credentials from Postgres.
// It implements auth.AdminStore.
type AdminTokenRepository struct {
	db *DB
}

// NewAdminTokenRepository creates a new admin token repository
func NewAdminTokenRepository(db *DB) *AdminTokenRepository {
	return &AdminTokenRepository{db: db}
}

// GetAdminTokenByServiceName implements auth.AdminStore. A missing row maps
// to auth.ErrInvalidCredentials so callers cannot probe service names.
func (r *AdminTokenRepository) GetAdminTokenByServiceName(ctx context.Context, serviceName string) (*auth.AdminToken, error) {
	var row adminTokenRow
	query := `
		SELECT id, service_name, token_hash, roles, enabled, expires_at, created_at, updated_at
		FROM admin_tokens
		WHERE service_name = $1
	`

	if err := r.db.conn.GetContext(ctx, &row, query, serviceName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, ErrAdminTokenNotFound)
		}
		return nil, fmt.Errorf("failed to get admin token: %w", err)
	}

	return &auth.AdminToken{
		ServiceName: row.ServiceName,
		TokenHash:   row.TokenHash,
		Roles:       []string(row.Roles),
		Enabled:     row.Enabled,
		ExpiresAt:   row.ExpiresAt,
	}, nil
}

// Upsert stores a token, replacing any token for the same service.
func (r *AdminTokenRepository) Upsert(ctx context.Context, token *auth.AdminToken) error {
	query := `
		INSERT INTO admin_tokens (id, service_name, token_hash, roles, enabled, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_name) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, roles = EXCLUDED.roles,
		    enabled = EXCLUDED.enabled, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		uuid.New(), token.ServiceName, token.TokenHash, pq.Array(token.Roles), token.Enabled, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert admin token: %w", err)
	}
	return nil
}
