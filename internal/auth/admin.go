package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// AdminToken is a service credential allowed to use the admin API.
type AdminToken struct {
	ServiceName string
	TokenHash   string // argon2id encoded hash
	Roles       []string
	Enabled     bool
	ExpiresAt   *time.Time
}

// AdminStore looks up admin service credentials.
type AdminStore interface {
	GetAdminTokenByServiceName(ctx context.Context, serviceName string) (*AdminToken, error)
}

// StaticAdminStore serves admin tokens from configuration.
type StaticAdminStore struct {
	mu     sync.RWMutex
	tokens map[string]*AdminToken
}

// NewStaticAdminStore builds a store holding the configured service token, if any.
func NewStaticAdminStore(cfg config.AdminConfig) *StaticAdminStore {
	s := &StaticAdminStore{tokens: make(map[string]*AdminToken)}
	if cfg.ServiceName != "" && cfg.TokenHash != "" {
		s.tokens[cfg.ServiceName] = &AdminToken{
			ServiceName: cfg.ServiceName,
			TokenHash:   cfg.TokenHash,
			Roles:       cfg.Roles,
			Enabled:     true,
		}
	}
	return s
}

// Put adds or replaces a token.
func (s *StaticAdminStore) Put(token *AdminToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ServiceName] = token
}

func (s *StaticAdminStore) GetAdminTokenByServiceName(ctx context.Context, serviceName string) (*AdminToken, error) {
	s.mu.RLock()
	token, ok := s.tokens[serviceName]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return token, nil
}

// GenerateAdminJWTWithToken verifies a raw service token against its stored
// argon2id hash and returns a signed admin JWT and its expiry.
func GenerateAdminJWTWithToken(ctx context.Context, serviceName, rawToken string, store AdminStore, cfg *config.Config) (string, int64, error) {
	token, err := store.GetAdminTokenByServiceName(ctx, serviceName)
	if err != nil {
		return "", 0, ErrInvalidCredentials
	}
	if !token.Enabled {
		return "", 0, fmt.Errorf("%w: token disabled", ErrInvalidCredentials)
	}
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return "", 0, fmt.Errorf("%w: token expired", ErrInvalidCredentials)
	}

	ok, err := utils.VerifyPasswordArgon2(rawToken, token.TokenHash)
	if err != nil {
		return "", 0, fmt.Errorf("verify token: %w", err)
	}
	if !ok {
		return "", 0, ErrInvalidCredentials
	}

	return GenerateAdminJWT(token.ServiceName, token.Roles, cfg)
}
