package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// APIKeyRecord is the view of an API key needed at request time.
// Records are never mutated after they are stored; revocation installs a new value.
type APIKeyRecord struct {
	KeyID     string
	TenantID  string
	Tier      models.Tier
	ExpiresAt time.Time // zero means the key never expires
	Revoked   bool
}

// IsExpired reports whether the key is past its expiry at now.
func (k *APIKeyRecord) IsExpired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// Usable reports whether the key may be used at now.
func (k *APIKeyRecord) Usable(now time.Time) bool {
	return !k.Revoked && !k.IsExpired(now) && k.Tier.Valid()
}

// APIKeyStore resolves plaintext API keys into stored records.
type APIKeyStore interface {
	Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error)
}

// InMemoryAPIKeyStore keeps records in a copy-on-write map so lookups never
// take a lock.
type InMemoryAPIKeyStore struct {
	mu   sync.Mutex // serializes writers
	keys atomic.Pointer[map[string]*APIKeyRecord]
}

func NewInMemoryAPIKeyStore() *InMemoryAPIKeyStore {
	s := &InMemoryAPIKeyStore{}
	empty := make(map[string]*APIKeyRecord)
	s.keys.Store(&empty)
	return s
}

// Add stores a record for the plaintext key, replacing any previous record.
func (s *InMemoryAPIKeyStore) Add(plaintextKey string, rec APIKeyRecord) {
	s.update(func(m map[string]*APIKeyRecord) {
		r := rec
		m[utils.HashString(plaintextKey)] = &r
	})
}

// Revoke marks the key as revoked. It reports false if the key is unknown.
func (s *InMemoryAPIKeyStore) Revoke(plaintextKey string) bool {
	hash := utils.HashString(plaintextKey)
	found := false
	s.update(func(m map[string]*APIKeyRecord) {
		old, ok := m[hash]
		if !ok {
			return
		}
		found = true
		revoked := *old
		revoked.Revoked = true
		m[hash] = &revoked
	})
	return found
}

// Len returns the number of stored keys.
func (s *InMemoryAPIKeyStore) Len() int {
	return len(*s.keys.Load())
}

func (s *InMemoryAPIKeyStore) update(fn func(m map[string]*APIKeyRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.keys.Load()
	next := make(map[string]*APIKeyRecord, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	fn(next)
	s.keys.Store(&next)
}

func (s *InMemoryAPIKeyStore) Lookup(ctx context.Context, plaintextKey string) (*APIKeyRecord, error) {
	rec, ok := (*s.keys.Load())[utils.HashString(plaintextKey)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return rec, nil
}
