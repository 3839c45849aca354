package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey represents a client API key row. Keys are issued by the account
// service; the gateway only reads them and stamps last_used_at.
type APIKey struct {
	ID         uuid.UUID  `db:"id"`
	TenantID   string     `db:"tenant_id"`
	Name       string     `db:"name"`
	KeyHash    string     `db:"key_hash"` // SHA-256 hash
	Tier       Tier       `db:"tier"`
	Revoked    bool       `db:"revoked"`
	ExpiresAt  *time.Time `db:"expires_at"` // NULL = never
	LastUsedAt *time.Time `db:"last_used_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// IsExpired checks if the key has expired at the given instant
func (k *APIKey) IsExpired(now time.Time) bool {
	if k.ExpiresAt == nil {
		return false
	}
	return !now.Before(*k.ExpiresAt)
}

// IsValid checks if the key is usable (not revoked, not expired, known tier)
func (k *APIKey) IsValid(now time.Time) bool {
	return !k.Revoked && !k.IsExpired(now) && k.Tier.Valid()
}
