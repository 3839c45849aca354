package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort    string
	JWTSecret   []byte
	Database    DatabaseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Gateway     GatewayConfig
	Health      HealthConfig
	Admin       AdminConfig
	Billing     BillingConfig
	Telemetry   TelemetryConfig
	LoggingSink LoggingSinkConfig
}

// DatabaseConfig holds database connection settings.
// An empty URL means API keys are served from memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Enabled reports whether a database is configured
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// CacheConfig holds cache settings
type CacheConfig struct {
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings. An empty Address disables Redis.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Enabled reports whether a Redis server is configured
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// Rate limiter backends
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
	RateLimitBackendNone   = "none"
)

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Backend          string        // memory, redis or none
	Shards           int           // number of in-memory window shards
	JanitorInterval  time.Duration // how often elapsed windows are swept
	RedisPrefix      string        // key prefix for Redis windows
	FallbackToMemory bool          // use the in-memory limiter when Redis fails
}

// GatewayConfig holds request pipeline settings
type GatewayConfig struct {
	DefaultTimeout  time.Duration // dispatch deadline when an endpoint sets none
	RoutesFile      string        // YAML routes and tier quotas
	SeedAPIKeys     string        // key:tenant:tier[:expiry], comma separated
	ShutdownTimeout time.Duration
}

// HealthConfig holds health check thresholds
type HealthConfig struct {
	MemoryThresholdPercent float64
	MemoryLimitBytes       int64 // used when GOMEMLIMIT is unset; 0 leaves memory out of health
	LatencyThresholdMs     float64
	PingTimeout            time.Duration
}

// AdminConfig describes the service credential allowed to call the admin API
type AdminConfig struct {
	ServiceName string
	TokenHash   string // argon2id encoded
	Roles       []string
	TokenTTL    time.Duration
}

// BillingConfig holds settings for the tier directory fed by billing
type BillingConfig struct {
	Enabled      bool
	TiersKey     string // Redis hash tenant -> tier
	SyncInterval time.Duration
}

// Usage record writers
const (
	TelemetryWriterPostgres = "postgres"
	TelemetryWriterS3       = "s3"
	TelemetryWriterNone     = "none"
)

// TelemetryConfig holds settings for the usage record pipeline
type TelemetryConfig struct {
	Enabled       bool
	QueueType     string // memory or redis
	QueueName     string
	BufferSize    int // in-process buffer in front of the queue
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	Writer        string // postgres, s3 or none
}

// LoggingSinkConfig holds configuration for the S3 usage archive
type LoggingSinkConfig struct {
	S3Bucket string // S3 bucket name
	S3Region string // AWS region
	S3Prefix string // Prefix for S3 keys (e.g., "usage/")
	PodName  string // Pod identifier for multi-pod deployments
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvList(key string, defaultValue []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", "8080"),
		JWTSecret: []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			APIKeyCacheSize: getEnvInt("CACHE_API_KEY_SIZE", 10000),
			APIKeyCacheTTL:  getEnvDuration("CACHE_API_KEY_TTL", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 50),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			Backend:          strings.ToLower(getEnvString("RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
			Shards:           getEnvInt("RATE_LIMIT_SHARDS", 64),
			JanitorInterval:  getEnvDuration("RATE_LIMIT_JANITOR_INTERVAL", 1*time.Minute),
			RedisPrefix:      getEnvString("RATE_LIMIT_REDIS_PREFIX", "ratelimit:"),
			FallbackToMemory: getEnvBool("RATE_LIMIT_FALLBACK_TO_MEMORY", true),
		},
		Gateway: GatewayConfig{
			DefaultTimeout:  getEnvDuration("GATEWAY_DEFAULT_TIMEOUT", 10*time.Second),
			RoutesFile:      getEnvString("ROUTES_FILE", ""),
			SeedAPIKeys:     getEnvString("SEED_API_KEYS", ""),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Health: HealthConfig{
			MemoryThresholdPercent: getEnvFloat("HEALTH_MEMORY_THRESHOLD_PERCENT", 90),
			MemoryLimitBytes:       int64(getEnvInt("HEALTH_MEMORY_LIMIT_BYTES", 0)),
			LatencyThresholdMs:     getEnvFloat("HEALTH_LATENCY_THRESHOLD_MS", 2000),
			PingTimeout:            getEnvDuration("HEALTH_PING_TIMEOUT", 1*time.Second),
		},
		Admin: AdminConfig{
			ServiceName: getEnvString("ADMIN_SERVICE_NAME", "gateway-admin"),
			TokenHash:   getEnvString("ADMIN_TOKEN_HASH", ""),
			Roles:       getEnvList("ADMIN_ROLES", []string{"admin"}),
			TokenTTL:    getEnvDuration("ADMIN_TOKEN_TTL", 15*time.Minute),
		},
		Billing: BillingConfig{
			Enabled:      getEnvBool("BILLING_TIERS_ENABLED", false),
			TiersKey:     getEnvString("BILLING_TIERS_KEY", "billing:tiers"),
			SyncInterval: getEnvDuration("BILLING_SYNC_INTERVAL", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:       getEnvBool("TELEMETRY_ENABLED", false),
			QueueType:     strings.ToLower(getEnvString("TELEMETRY_QUEUE_TYPE", "memory")),
			QueueName:     getEnvString("TELEMETRY_QUEUE_NAME", "usage_records"),
			BufferSize:    getEnvInt("TELEMETRY_BUFFER_SIZE", 10000),
			BatchSize:     getEnvInt("TELEMETRY_BATCH_SIZE", 500),
			FlushInterval: getEnvDuration("TELEMETRY_FLUSH_INTERVAL", 5*time.Second),
			MaxRetries:    getEnvInt("TELEMETRY_MAX_RETRIES", 3),
			Writer:        strings.ToLower(getEnvString("TELEMETRY_WRITER", TelemetryWriterNone)),
		},
		LoggingSink: LoggingSinkConfig{
			S3Bucket: getEnvString("LOGGING_SINK_S3_BUCKET", ""),
			S3Region: getEnvString("LOGGING_SINK_S3_REGION", "us-east-1"),
			S3Prefix: getEnvString("LOGGING_SINK_S3_PREFIX", "usage/"),
			PodName:  getEnvString("POD_NAME", "gateway-0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.RateLimit.Backend {
	case RateLimitBackendMemory, RateLimitBackendNone:
	case RateLimitBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("RATE_LIMIT_BACKEND=redis requires REDIS_ADDRESS")
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}

	if c.RateLimit.Shards <= 0 {
		return fmt.Errorf("RATE_LIMIT_SHARDS must be positive, got %d", c.RateLimit.Shards)
	}
	if c.Gateway.DefaultTimeout <= 0 {
		return fmt.Errorf("GATEWAY_DEFAULT_TIMEOUT must be positive")
	}

	if c.Billing.Enabled && !c.Redis.Enabled() {
		return fmt.Errorf("BILLING_TIERS_ENABLED requires REDIS_ADDRESS")
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.QueueType {
		case "memory":
		case "redis":
			if !c.Redis.Enabled() {
				return fmt.Errorf("TELEMETRY_QUEUE_TYPE=redis requires REDIS_ADDRESS")
			}
		default:
			return fmt.Errorf("unknown TELEMETRY_QUEUE_TYPE %q", c.Telemetry.QueueType)
		}

		switch c.Telemetry.Writer {
		case TelemetryWriterNone:
		case TelemetryWriterPostgres:
			if !c.Database.Enabled() {
				return fmt.Errorf("TELEMETRY_WRITER=postgres requires DATABASE_URL")
			}
		case TelemetryWriterS3:
			if c.LoggingSink.S3Bucket == "" {
				return fmt.Errorf("TELEMETRY_WRITER=s3 requires LOGGING_SINK_S3_BUCKET")
			}
		default:
			return fmt.Errorf("unknown TELEMETRY_WRITER %q", c.Telemetry.Writer)
		}
	}

	return nil
}
