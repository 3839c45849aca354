package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is the audit row written for every processed request.
type UsageRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	RequestID      string    `db:"request_id" json:"request_id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id,omitempty"`
	APIKeyID       string    `db:"api_key_id" json:"api_key_id,omitempty"`
	Tier           Tier      `db:"tier" json:"tier,omitempty"`
	Path           string    `db:"path" json:"path"`
	Method         string    `db:"method" json:"method"`
	Version        string    `db:"version" json:"version"`
	StatusCode     int       `db:"status_code" json:"status_code"`
	ErrorCode      string    `db:"error_code" json:"error_code,omitempty"`
	Stage          string    `db:"stage" json:"stage"`
	ResponseTimeMS int64     `db:"response_time_ms" json:"response_time_ms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
