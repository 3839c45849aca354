package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// LastUsedRecorder receives best-effort "key used" notifications.
// RecordUse must return immediately; implementations drop on saturation.
type LastUsedRecorder interface {
	RecordUse(keyID string, at time.Time)
}

// TierSource exposes tier assignments owned by the billing system.
type TierSource interface {
	TierFor(tenantID string) (models.Tier, bool)
}

// Validator turns a raw API key into the identity used by the rest of the pipeline.
type Validator struct {
	store    APIKeyStore
	lastUsed LastUsedRecorder
	tiers    TierSource
	now      func() time.Time
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithLastUsedRecorder sets where key usage is reported.
func WithLastUsedRecorder(r LastUsedRecorder) ValidatorOption {
	return func(v *Validator) { v.lastUsed = r }
}

// WithTierSource lets billing assignments override the tier stored on the key.
func WithTierSource(ts TierSource) ValidatorOption {
	return func(v *Validator) { v.tiers = ts }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

func NewValidator(store APIKeyStore, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate resolves key into its record. Unknown, revoked and expired keys all
// fail with ErrInvalidAPIKey; store outages are returned wrapped.
func (v *Validator) Validate(ctx context.Context, key string) (*APIKeyRecord, error) {
	if key == "" {
		return nil, ErrInvalidAPIKey
	}

	rec, err := v.store.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	now := v.now()
	if !rec.Usable(now) {
		return nil, ErrInvalidAPIKey
	}

	if v.tiers != nil {
		if tier, ok := v.tiers.TierFor(rec.TenantID); ok && tier.Valid() && tier != rec.Tier {
			overridden := *rec
			overridden.Tier = tier
			rec = &overridden
		}
	}

	if v.lastUsed != nil {
		v.touch(rec.KeyID, now)
	}

	return rec, nil
}

// touch must never fail a validation, whatever the recorder does.
func (v *Validator) touch(keyID string, at time.Time) {
	defer func() { _ = recover() }()
	v.lastUsed.RecordUse(keyID, at)
}
