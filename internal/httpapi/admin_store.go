package httpapi

import (
	"context"
	"errors"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
)

// FallbackAdminStore asks the database first and falls back to the service
// token configured in the environment, so a fresh deployment can always
// bootstrap admin access.
type FallbackAdminStore struct {
	primary  auth.AdminStore
	fallback auth.AdminStore
}

// NewFallbackAdminStore creates a store consulting primary, then fallback.
func NewFallbackAdminStore(primary, fallback auth.AdminStore) *FallbackAdminStore {
	return &FallbackAdminStore{primary: primary, fallback: fallback}
}

// GetAdminTokenByServiceName returns the primary store's token unless it has
// none for serviceName. Primary outages are not masked.
func (s *FallbackAdminStore) GetAdminTokenByServiceName(ctx context.Context, serviceName string) (*auth.AdminToken, error) {
	token, err := s.primary.GetAdminTokenByServiceName(ctx, serviceName)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		return nil, err
	}
	return s.fallback.GetAdminTokenByServiceName(ctx, serviceName)
}
