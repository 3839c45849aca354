package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

func TestAPIKeyRecord_Usable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		record   APIKeyRecord
		expected bool
	}{
		{
			name:     "no expiry",
			record:   APIKeyRecord{KeyID: "k1", Tier: models.TierFree},
			expected: true,
		},
		{
			name:     "future expiry",
			record:   APIKeyRecord{KeyID: "k2", Tier: models.TierPremium, ExpiresAt: now.Add(time.Hour)},
			expected: true,
		},
		{
			name:     "past expiry",
			record:   APIKeyRecord{KeyID: "k3", Tier: models.TierEnterprise, ExpiresAt: now.Add(-time.Second)},
			expected: false,
		},
		{
			name:     "revoked",
			record:   APIKeyRecord{KeyID: "k4", Tier: models.TierBusiness, Revoked: true},
			expected: false,
		},
		{
			name:     "unknown tier",
			record:   APIKeyRecord{KeyID: "k5", Tier: models.Tier("gold")},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Usable(now); got != tt.expected {
				t.Errorf("Usable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestInMemoryAPIKeyStore_Lookup(t *testing.T) {
	store := NewInMemoryAPIKeyStore()
	store.Add("demo-key", APIKeyRecord{KeyID: "demo-key-id", TenantID: "tenant-1", Tier: models.TierFree})
	ctx := context.Background()

	t.Run("valid key", func(t *testing.T) {
		record, err := store.Lookup(ctx, "demo-key")
		if err != nil {
			t.Fatalf("Lookup() error = %v, want nil", err)
		}
		if record.KeyID != "demo-key-id" {
			t.Errorf("Lookup() KeyID = %v, want demo-key-id", record.KeyID)
		}
		if record.TenantID != "tenant-1" {
			t.Errorf("Lookup() TenantID = %v, want tenant-1", record.TenantID)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		record, err := store.Lookup(ctx, "invalid-key-123")
		if err != ErrKeyNotFound {
			t.Errorf("Lookup() error = %v, want ErrKeyNotFound", err)
		}
		if record != nil {
			t.Errorf("Lookup() record = %v, want nil", record)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := store.Lookup(ctx, "")
		if err != ErrKeyNotFound {
			t.Errorf("Lookup() error = %v, want ErrKeyNotFound", err)
		}
	})
}

func TestInMemoryAPIKeyStore_RevokeInstallsNewRecord(t *testing.T) {
	store := NewInMemoryAPIKeyStore()
	store.Add("k", APIKeyRecord{KeyID: "id", Tier: models.TierPremium})
	ctx := context.Background()

	before, err := store.Lookup(ctx, "k")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if !store.Revoke("k") {
		t.Fatal("Revoke() = false, want true")
	}
	if store.Revoke("missing") {
		t.Error("Revoke(missing) = true, want false")
	}

	after, err := store.Lookup(ctx, "k")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !after.Revoked {
		t.Error("record after Revoke() is not revoked")
	}
	if before.Revoked {
		t.Error("previously returned record was mutated by Revoke()")
	}
}

func TestInMemoryAPIKeyStore_ConcurrentReadersAndWriters(t *testing.T) {
	store := NewInMemoryAPIKeyStore()
	store.Add("stable", APIKeyRecord{KeyID: "stable", Tier: models.TierFree})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				store.Add(string(rune('a'+i))+"-key", APIKeyRecord{KeyID: "x", Tier: models.TierFree})
				if _, err := store.Lookup(ctx, "stable"); err != nil {
					t.Errorf("Lookup(stable) error = %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 9 {
		t.Errorf("Len() = %d, want 9", store.Len())
	}
}
