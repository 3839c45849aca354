package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// SeedAPIKey is an API key provisioned from SEED_API_KEYS.
type SeedAPIKey struct {
	Key       string
	TenantID  string
	Tier      models.Tier
	ExpiresAt time.Time
}

// ParseSeedAPIKeys parses "key:tenant:tier[:expiryRFC3339]" entries separated by commas.
func ParseSeedAPIKeys(s string) ([]SeedAPIKey, error) {
	var keys []SeedAPIKey
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		// RFC3339 timestamps contain colons, so split at most 4 ways.
		parts := strings.SplitN(entry, ":", 4)
		if len(parts) < 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid seed api key entry %q", entry)
		}

		tier, err := models.ParseTier(parts[2])
		if err != nil {
			return nil, fmt.Errorf("seed api key for tenant %s: %w", parts[1], err)
		}

		seed := SeedAPIKey{Key: parts[0], TenantID: parts[1], Tier: tier}
		if len(parts) == 4 && parts[3] != "" {
			exp, err := time.Parse(time.RFC3339, parts[3])
			if err != nil {
				return nil, fmt.Errorf("seed api key for tenant %s: invalid expiry: %w", parts[1], err)
			}
			seed.ExpiresAt = exp
		}
		keys = append(keys, seed)
	}
	return keys, nil
}
