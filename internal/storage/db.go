package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// Schema creates the tables the gateway reads and writes. Keys and admin
// tokens are owned by the account service; the gateway only stamps
// last_used_at and appends usage rows.
const Schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id           UUID PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	key_hash     TEXT NOT NULL UNIQUE,
	tier         TEXT NOT NULL,
	revoked      BOOLEAN NOT NULL DEFAULT FALSE,
	expires_at   TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS admin_tokens (
	id           UUID PRIMARY KEY,
	service_name TEXT NOT NULL UNIQUE,
	token_hash   TEXT NOT NULL,
	roles        TEXT[] NOT NULL DEFAULT '{}',
	enabled      BOOLEAN NOT NULL DEFAULT TRUE,
	expires_at   TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS usage_records (
	id               UUID PRIMARY KEY,
	request_id       TEXT NOT NULL,
	tenant_id        TEXT NOT NULL DEFAULT '',
	api_key_id       TEXT NOT NULL DEFAULT '',
	tier             TEXT NOT NULL DEFAULT '',
	path             TEXT NOT NULL,
	method           TEXT NOT NULL,
	version          TEXT NOT NULL DEFAULT '',
	status_code      INTEGER NOT NULL,
	error_code       TEXT NOT NULL DEFAULT '',
	stage            TEXT NOT NULL,
	response_time_ms BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS usage_records_tenant_created ON usage_records (tenant_id, created_at);
`

// DB wraps the database connection and provides health checks
type DB struct {
	conn *sqlx.DB

	// Cache for API key lookups, keyed by key hash
	apiKeyCache *LRUCache[*models.APIKey]
}

// NewDB connects to Postgres and configures the pool.
func NewDB(cfg config.DatabaseConfig, cache config.CacheConfig) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	conn, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return NewDBFromConn(conn, cache), nil
}

// NewDBFromConn wraps an existing connection.
func NewDBFromConn(conn *sqlx.DB, cache config.CacheConfig) *DB {
	return &DB{
		conn:        conn,
		apiKeyCache: NewLRUCache[*models.APIKey](cache.APIKeyCacheSize, cache.APIKeyCacheTTL),
	}
}

// Migrate applies Schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.apiKeyCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health runs a trivial query; it backs the health check pinger.
func (db *DB) Health(ctx context.Context) error {
	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// DBStats returns database statistics
type DBStats struct {
	MaxOpenConnections int           `json:"maxOpenConnections"`
	OpenConnections    int           `json:"openConnections"`
	InUse              int           `json:"inUse"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"waitCount"`
	WaitDuration       time.Duration `json:"waitDuration"`

	APIKeyCacheStats CacheStats `json:"apiKeyCache"`
}

// GetStats returns current database and cache statistics
func (db *DB) GetStats() DBStats {
	stats := db.conn.Stats()

	return DBStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		APIKeyCacheStats:   db.apiKeyCache.GetStats(),
	}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// CleanupExpiredCacheEntries removes expired entries; call it periodically.
func (db *DB) CleanupExpiredCacheEntries() int {
	return db.apiKeyCache.CleanupExpired()
}

// NewAPIKeyRepository creates a new API key repository
func (db *DB) NewAPIKeyRepository() *APIKeyRepository {
	return NewAPIKeyRepository(db)
}

// NewUsageRepository creates a new usage repository
func (db *DB) NewUsageRepository() *UsageRepository {
	return NewUsageRepository(db)
}

// NewAdminTokenRepository creates a new admin token repository
func (db *DB) NewAdminTokenRepository() *AdminTokenRepository {
	return NewAdminTokenRepository(db)
}
