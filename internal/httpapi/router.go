package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/billing"
	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/gateway"
	"github.com/Chromeox/CourseScout-sub015/internal/logging"
	"github.com/Chromeox/CourseScout-sub015/internal/metrics"
	"github.com/Chromeox/CourseScout-sub015/internal/middleware"
	"github.com/Chromeox/CourseScout-sub015/internal/ratelimit"
	"github.com/Chromeox/CourseScout-sub015/internal/registry"
	"github.com/Chromeox/CourseScout-sub015/internal/storage"
	"github.com/Chromeox/CourseScout-sub015/internal/upstream"
)

const maintenanceInterval = 10 * time.Minute

// Dependencies aggregates all services the HTTP layer needs. Optional
// backends are nil when not configured.
type Dependencies struct {
	Config     *config.Config
	DB         *storage.DB
	Redis      *storage.RedisClient
	APIKeys    auth.APIKeyStore
	AdminStore auth.AdminStore
	Validator  *auth.Validator
	Registry   *registry.Registry
	Limiter    ratelimit.Limiter
	Checker    *ratelimit.Checker
	Aggregator *metrics.Aggregator
	Metrics    *metrics.PrometheusMetrics
	Processor  *gateway.Processor

	// Database-only admin surfaces
	KeyAdmin APIKeyAdmin
	Usage    UsageQuery

	Tiers     *billing.RedisTierDirectory
	LastUsed  *storage.LastUsedTracker
	Telemetry *Telemetry

	UpstreamClient *http.Client

	memLimiter *ratelimit.MemoryLimiter
	stopMaint  chan struct{}
	maintDone  chan struct{}
}

// NewRouter creates an HTTP router with all dependencies wired up
func NewRouter(cfg *config.Config) (http.Handler, *Dependencies, error) {
	ctx := context.Background()
	d := &Dependencies{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = d.Close(closeCtx)
		}
	}()

	routes, err := config.LoadRoutes(cfg.Gateway.RoutesFile)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.Enabled() {
		d.DB, err = storage.NewDB(cfg.Database, cfg.Cache)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := d.DB.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		keyRepo := d.DB.NewAPIKeyRepository()
		d.APIKeys = NewDatabaseAPIKeyStore(keyRepo)
		d.KeyAdmin = keyRepo
		d.Usage = d.DB.NewUsageRepository()
		d.AdminStore = NewFallbackAdminStore(d.DB.NewAdminTokenRepository(), auth.NewStaticAdminStore(cfg.Admin))
		d.LastUsed = storage.NewLastUsedTracker(keyRepo, 0)
		d.LastUsed.Start()
	} else {
		store, err := seedKeyStore(cfg.Gateway.SeedAPIKeys)
		if err != nil {
			return nil, nil, err
		}
		d.APIKeys = store
		d.AdminStore = auth.NewStaticAdminStore(cfg.Admin)
		logging.Infof("no database configured, serving %d seeded API keys from memory", store.Len())
	}

	if cfg.Redis.Enabled() {
		d.Redis, err = storage.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	d.Limiter = d.newLimiter()
	d.Checker = ratelimit.NewChecker(d.Limiter, routes.TierQuotas())

	validatorOpts := []auth.ValidatorOption{}
	if d.LastUsed != nil {
		validatorOpts = append(validatorOpts, auth.WithLastUsedRecorder(d.LastUsed))
	}
	if cfg.Billing.Enabled {
		d.Tiers = billing.NewRedisTierDirectory(d.Redis.Client(), cfg.Billing)
		if err := d.Tiers.Sync(ctx); err != nil {
			logging.Warningf("initial tier sync failed, using key tiers until the next sync: %v", err)
		}
		d.Tiers.Start()
		validatorOpts = append(validatorOpts, auth.WithTierSource(d.Tiers))
	}
	d.Validator = auth.NewValidator(d.APIKeys, validatorOpts...)

	d.UpstreamClient = upstream.NewClient(cfg.Gateway.DefaultTimeout + 5*time.Second)
	d.Registry = registry.New()
	if err := upstream.RegisterRoutes(d.Registry, routes.Routes, d.UpstreamClient); err != nil {
		return nil, nil, fmt.Errorf("failed to register routes: %w", err)
	}
	logging.Infof("registered %d endpoints", d.Registry.Len())

	d.Aggregator = metrics.NewAggregator(metrics.WithHealthOptions(metrics.HealthOptions{
		MemoryThresholdPercent: cfg.Health.MemoryThresholdPercent,
		MemoryLimitBytes:       cfg.Health.MemoryLimitBytes,
		LatencyThresholdMs:     cfg.Health.LatencyThresholdMs,
		PingTimeout:            cfg.Health.PingTimeout,
	}))
	if d.DB != nil {
		d.Aggregator.AddPinger("postgres", metrics.PingerFunc(d.DB.Health))
	}
	if d.Redis != nil {
		d.Aggregator.AddPinger("redis", metrics.PingerFunc(d.Redis.Ping))
	}
	d.Metrics = metrics.NewPrometheusMetrics()

	if cfg.Telemetry.Enabled {
		d.Telemetry, err = NewTelemetry(ctx, cfg, d.redisClientOrNil(), d.DB)
		if err != nil {
			return nil, nil, err
		}
		d.Telemetry.Start(ctx)
	}

	opts := []gateway.Option{
		gateway.WithDefaultTimeout(cfg.Gateway.DefaultTimeout),
		gateway.WithOutcomeRecorder(d.Aggregator),
		gateway.WithMetrics(d.Metrics),
	}
	if d.Telemetry != nil {
		opts = append(opts, gateway.WithUsageRecorder(d.Telemetry.Sink))
	}
	d.Processor = gateway.NewProcessor(d.Validator, d.Registry, d.Checker, opts...)

	d.startMaintenance()
	ok = true
	return NewHandler(d), d, nil
}

func seedKeyStore(seeds string) (*auth.InMemoryAPIKeyStore, error) {
	keys, err := config.ParseSeedAPIKeys(seeds)
	if err != nil {
		return nil, err
	}
	store := auth.NewInMemoryAPIKeyStore()
	for _, k := range keys {
		store.Add(k.Key, auth.APIKeyRecord{
			// Stable across restarts so rate-limit windows in Redis keep applying.
			KeyID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(k.Key)).String(),
			TenantID:  k.TenantID,
			Tier:      k.Tier,
			ExpiresAt: k.ExpiresAt,
		})
	}
	return store, nil
}

func (d *Dependencies) redisClientOrNil() *redis.Client {
	if d.Redis == nil {
		return nil
	}
	return d.Redis.Client()
}

func (d *Dependencies) newLimiter() ratelimit.Limiter {
	rl := d.Config.RateLimit
	newMemory := func() *ratelimit.MemoryLimiter {
		d.memLimiter = ratelimit.NewMemoryLimiter(
			ratelimit.WithShards(rl.Shards),
			ratelimit.WithJanitor(rl.JanitorInterval),
		)
		return d.memLimiter
	}

	switch rl.Backend {
	case config.RateLimitBackendNone:
		logging.Warningf("rate limiting is disabled")
		return ratelimit.NewNoopLimiter()
	case config.RateLimitBackendRedis:
		var fallback *ratelimit.MemoryLimiter
		if rl.FallbackToMemory {
			fallback = newMemory()
		}
		return ratelimit.NewRedisLimiter(d.Redis.Client(), rl.RedisPrefix, fallback)
	default:
		return newMemory()
	}
}

// startMaintenance periodically prunes idle metric series and expired cache entries.
func (d *Dependencies) startMaintenance() {
	d.stopMaint = make(chan struct{})
	d.maintDone = make(chan struct{})
	go func() {
		defer close(d.maintDone)
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pruned := d.Aggregator.Prune(context.Background())
				expired := 0
				if d.DB != nil {
					expired = d.DB.CleanupExpiredCacheEntries()
				}
				logging.Debugf("maintenance: pruned %d metric series, %d cache entries", pruned, expired)
			case <-d.stopMaint:
				return
			}
		}
	}()
}

// Close releases everything NewRouter started, in dependency order: usage
// telemetry first so its last records still reach Redis or Postgres, then
// background trackers, then the connections themselves.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.stopMaint != nil {
		close(d.stopMaint)
		<-d.maintDone
		d.stopMaint = nil
	}
	if d.Telemetry != nil {
		if err := d.Telemetry.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if d.LastUsed != nil {
		if err := d.LastUsed.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("last used tracker: %w", err))
		}
	}
	if d.Tiers != nil {
		if err := d.Tiers.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tier directory: %w", err))
		}
	}
	if d.memLimiter != nil {
		_ = d.memLimiter.Close()
	}
	if d.UpstreamClient != nil {
		d.UpstreamClient.CloseIdleConnections()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewHandler builds the chi router over already constructed dependencies.
func NewHandler(d *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)

	// Public
	r.Get("/health", d.handleHealth)
	r.Method(http.MethodGet, "/metrics", d.Metrics.HTTPHandler())

	// Gateway traffic; the processor authenticates the key itself.
	r.HandleFunc("/api/{version}/*", d.handleGateway)
	r.With(middleware.APIKeyMiddleware(d.Validator)).Get("/gateway/endpoints", d.handleAvailableEndpoints)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/auth/token", d.handleAdminToken)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminJWTMiddleware(d.Config, auth.RoleViewer))
			r.Get("/metrics", d.handleAdminMetrics)
			r.Get("/endpoints", d.handleAdminListEndpoints)
			r.Get("/ratelimit", d.handleRateLimitUsage)
			r.Get("/tiers/{tenant}", d.handleGetTier)
			r.Get("/telemetry/dead-letters", d.handleDeadLetters)
			if d.KeyAdmin != nil {
				keys := NewAdminAPIKeysHandler(d.KeyAdmin)
				r.Get("/keys", keys.List)
				r.Get("/keys/{id}", keys.GetByID)
			}
			if d.Usage != nil {
				r.Get("/usage", d.handleUsage)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminJWTMiddleware(d.Config, auth.RoleAdmin))
			r.Post("/endpoints", d.handleAdminRegisterEndpoint)
			r.Delete("/endpoints", d.handleAdminDeregisterEndpoint)
			r.Delete("/ratelimit", d.handleRateLimitReset)
			r.Put("/tiers/{tenant}", d.handleSetTier)
			r.Post("/telemetry/dead-letters/{id}/retry", d.handleRetryDeadLetter)
			if d.KeyAdmin != nil {
				keys := NewAdminAPIKeysHandler(d.KeyAdmin)
				r.Delete("/keys/{id}", keys.Revoke)
			}
		})
	})

	return r
}
