package models

import (
	"fmt"
	"strings"
	"time"
)

// Tier is the access level bound to an API key. Ordering comes from the rank
// table below, not from the order the constants are declared in.
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierBusiness   Tier = "business"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierFree:       10,
	TierPremium:    20,
	TierBusiness:   30,
	TierEnterprise: 40,
}

// AllTiers returns every known tier from lowest to highest.
func AllTiers() []Tier {
	return []Tier{TierFree, TierPremium, TierBusiness, TierEnterprise}
}

// ParseTier converts a case-insensitive tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the position of t in the tier ordering. Unknown tiers rank
// below every known tier.
func (t Tier) Rank() int {
	return tierRank[t]
}

// Compare returns -1, 0 or +1 depending on whether t is lower than, equal to
// or higher than other.
func (t Tier) Compare(other Tier) int {
	a, b := t.Rank(), other.Rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether t grants everything min grants.
func (t Tier) AtLeast(min Tier) bool {
	return t.Valid() && t.Compare(min) >= 0
}

func (t Tier) String() string {
	return string(t)
}

// Quota is a request budget over a fixed window.
type Quota struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// Enabled reports whether the quota actually limits anything.
func (q Quota) Enabled() bool {
	return q.Limit > 0 && q.Window > 0
}

// DefaultQuotas are the per-key budgets used when no override is configured.
func DefaultQuotas() map[Tier]Quota {
	return map[Tier]Quota{
		TierFree:       {Limit: 100, Window: time.Minute},
		TierPremium:    {Limit: 1000, Window: time.Minute},
		TierBusiness:   {Limit: 5000, Window: time.Minute},
		TierEnterprise: {Limit: 20000, Window: time.Minute},
	}
}
