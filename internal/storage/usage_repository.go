package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// UsageRepository appends and reads usage records.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const insertUsage = `
	INSERT INTO usage_records (
		id, request_id, tenant_id, api_key_id, tier, path, method, version,
		status_code, error_code, stage, response_time_ms, created_at
	) VALUES (
		:id, :request_id, :tenant_id, :api_key_id, :tier, :path, :method, :version,
		:status_code, :error_code, :stage, :response_time_ms, :created_at
	)
	ON CONFLICT (id) DO NOTHING
`

// WriteBatch inserts records in one multi-row statement inside a
// transaction. Rows already present are skipped, so a retried batch does
// not duplicate.
func (r *UsageRepository) WriteBatch(ctx context.Context, records []*models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertUsage, records); err != nil {
		return fmt.Errorf("failed to insert usage batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByTenant returns a tenant's records in [start, end), newest first.
func (r *UsageRepository) ListByTenant(ctx context.Context, tenantID string, start, end time.Time, limit int) ([]*models.UsageRecord, error) {
	query := `
		SELECT id, request_id, tenant_id, api_key_id, tier, path, method, version,
		       status_code, error_code, stage, response_time_ms, created_at
		FROM usage_records
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	var records []*models.UsageRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, tenantID, start, end, limit); err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}
