// Package billing mirrors tier assignments owned by the billing system.
// Billing writes tenant -> tier into a Redis hash; the gateway pulls the
// hash periodically into an immutable snapshot that request goroutines read
// without locking.
package billing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

type tierSnapshot struct {
	tiers    map[string]models.Tier
	syncedAt time.Time
}

// RedisTierDirectory implements auth.TierSource. When Redis is unreachable
// the last good snapshot keeps being served.
type RedisTierDirectory struct {
	client   *redis.Client
	key      string
	interval time.Duration
	logger   *utils.Logger

	snapshot atomic.Pointer[tierSnapshot]

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	stopped   chan struct{}
}

// NewRedisTierDirectory creates a directory over the hash named in cfg.
// Call Sync or Start to load it.
func NewRedisTierDirectory(client *redis.Client, cfg config.BillingConfig) *RedisTierDirectory {
	key := cfg.TiersKey
	if key == "" {
		key = "billing:tiers"
	}
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	d := &RedisTierDirectory{
		client:   client,
		key:      key,
		interval: interval,
		logger:   utils.NewLogger("tier-directory").With("key", key),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	d.snapshot.Store(&tierSnapshot{tiers: map[string]models.Tier{}})
	return d
}

// TierFor returns the billing tier for tenantID, if billing assigned one.
func (d *RedisTierDirectory) TierFor(tenantID string) (models.Tier, bool) {
	t, ok := d.snapshot.Load().tiers[tenantID]
	return t, ok
}

// Len returns the number of tenants in the current snapshot.
func (d *RedisTierDirectory) Len() int {
	return len(d.snapshot.Load().tiers)
}

// SyncedAt returns when the current snapshot was loaded; zero if never.
func (d *RedisTierDirectory) SyncedAt() time.Time {
	return d.snapshot.Load().syncedAt
}

// Sync reloads the hash. Entries naming an unknown tier are skipped. A
// SetTier that lands while the hash is being read wins; the next sync picks
// up the stored value anyway.
func (d *RedisTierDirectory) Sync(ctx context.Context) error {
	prev := d.snapshot.Load()
	raw, err := d.client.HGetAll(ctx, d.key).Result()
	if err != nil {
		return fmt.Errorf("failed to load tiers: %w", err)
	}

	tiers := make(map[string]models.Tier, len(raw))
	for tenant, name := range raw {
		tier, err := models.ParseTier(name)
		if err != nil {
			d.logger.Warn("Skipping tier assignment", "tenant", tenant, "error", err)
			continue
		}
		tiers[tenant] = tier
	}

	if !d.snapshot.CompareAndSwap(prev, &tierSnapshot{tiers: tiers, syncedAt: time.Now()}) {
		d.logger.Debug("Tier directory changed during sync, keeping local assignment")
		return nil
	}
	d.logger.Debug("Tier directory synced", "tenants", len(tiers))
	return nil
}

// SetTier writes an assignment to Redis and the local snapshot. Other
// gateway instances see it on their next sync.
func (d *RedisTierDirectory) SetTier(ctx context.Context, tenantID string, tier models.Tier) error {
	if !tier.Valid() {
		return fmt.Errorf("unknown tier %q", tier)
	}
	if err := d.client.HSet(ctx, d.key, tenantID, tier.String()).Err(); err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}

	for {
		old := d.snapshot.Load()
		next := make(map[string]models.Tier, len(old.tiers)+1)
		for k, v := range old.tiers {
			next[k] = v
		}
		next[tenantID] = tier
		if d.snapshot.CompareAndSwap(old, &tierSnapshot{tiers: next, syncedAt: old.syncedAt}) {
			return nil
		}
	}
}

// Start performs periodic syncs until Stop.
func (d *RedisTierDirectory) Start() {
	d.startOnce.Do(func() { go d.run() })
}

func (d *RedisTierDirectory) run() {
	defer close(d.stopped)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), d.interval)
			if err := d.Sync(ctx); err != nil {
				d.logger.Error("Tier sync failed, keeping previous snapshot", "error", err)
			}
			cancel()
		case <-d.stop:
			return
		}
	}
}

// Stop ends periodic syncing. It is safe to call without Start.
func (d *RedisTierDirectory) Stop(ctx context.Context) error {
	// Claims startOnce if Start never ran, so there is no goroutine to wait for.
	d.startOnce.Do(func() { close(d.stopped) })
	d.stopOnce.Do(func() { close(d.stop) })
	select {
	case <-d.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
