package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAPIKey_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-1 * time.Hour)
	future := now.Add(1 * time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		expected  bool
	}{
		{
			name:      "nil expiration never expires",
			expiresAt: nil,
			expected:  false,
		},
		{
			name:      "past expiration is expired",
			expiresAt: &past,
			expected:  true,
		},
		{
			name:      "future expiration not expired",
			expiresAt: &future,
			expected:  false,
		},
		{
			name:      "expiring exactly now is expired",
			expiresAt: &now,
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &APIKey{
				ExpiresAt: tt.expiresAt,
			}

			result := key.IsExpired(now)
			if result != tt.expected {
				t.Errorf("IsExpired() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAPIKey_IsValid(t *testing.T) {
	now := time.Now()
	past := now.Add(-1 * time.Hour)
	future := now.Add(1 * time.Hour)

	tests := []struct {
		name      string
		revoked   bool
		tier      Tier
		expiresAt *time.Time
		expected  bool
	}{
		{
			name:     "active and not expired",
			tier:     TierFree,
			expected: true,
		},
		{
			name:      "active with future expiration",
			tier:      TierBusiness,
			expiresAt: &future,
			expected:  true,
		},
		{
			name:     "revoked",
			revoked:  true,
			tier:     TierPremium,
			expected: false,
		},
		{
			name:      "expired",
			tier:      TierEnterprise,
			expiresAt: &past,
			expected:  false,
		},
		{
			name:     "unknown tier",
			tier:     Tier("platinum"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &APIKey{
				ID:        uuid.New(),
				Tier:      tt.tier,
				Revoked:   tt.revoked,
				ExpiresAt: tt.expiresAt,
			}

			if got := key.IsValid(now); got != tt.expected {
				t.Errorf("IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}
