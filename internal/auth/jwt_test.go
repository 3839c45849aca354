package auth

import (
	"context"
	"testing"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

func getTestConfig() *config.Config {
	return &config.Config{
		JWTSecret: []byte("test-secret-key-for-testing"),
		Admin: config.AdminConfig{
			TokenTTL: 15 * time.Minute,
		},
	}
}

func TestGenerateAndValidateAdminJWT(t *testing.T) {
	cfg := getTestConfig()

	token, exp, err := GenerateAdminJWT("ops", []string{"admin"}, cfg)
	if err != nil {
		t.Fatalf("GenerateAdminJWT() error = %v", err)
	}
	if exp <= time.Now().Unix() {
		t.Error("GenerateAdminJWT() expiration time is in the past")
	}

	claims, err := ValidateAdminJWT(token, cfg)
	if err != nil {
		t.Fatalf("ValidateAdminJWT() error = %v", err)
	}
	if claims.ServiceName != "ops" {
		t.Errorf("claims.ServiceName = %v, want ops", claims.ServiceName)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Errorf("claims.Roles = %v, want [admin]", claims.Roles)
	}

	t.Run("wrong secret", func(t *testing.T) {
		other := getTestConfig()
		other.JWTSecret = []byte("another-secret")
		if _, err := ValidateAdminJWT(token, other); err == nil {
			t.Error("ValidateAdminJWT() error = nil with wrong secret")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := ValidateAdminJWT("not-a-jwt", cfg); err == nil {
			t.Error("ValidateAdminJWT() error = nil for garbage token")
		}
	})
}

func TestGenerateAdminJWTWithToken(t *testing.T) {
	cfg := getTestConfig()
	ctx := context.Background()

	rawToken := "service-token-12345"
	tokenHash, err := utils.HashPasswordArgon2(rawToken)
	if err != nil {
		t.Fatalf("Failed to hash token: %v", err)
	}

	store := NewStaticAdminStore(config.AdminConfig{
		ServiceName: "ops-console",
		TokenHash:   tokenHash,
		Roles:       []string{"viewer"},
	})

	t.Run("valid token", func(t *testing.T) {
		token, expTime, err := GenerateAdminJWTWithToken(ctx, "ops-console", rawToken, store, cfg)
		if err != nil {
			t.Fatalf("GenerateAdminJWTWithToken() error = %v", err)
		}
		if expTime <= time.Now().Unix() {
			t.Error("GenerateAdminJWTWithToken() expiration time is in the past")
		}

		claims, err := ValidateAdminJWT(token, cfg)
		if err != nil {
			t.Fatalf("ValidateAdminJWT() error = %v", err)
		}
		if claims.ServiceName != "ops-console" {
			t.Errorf("claims.ServiceName = %v, want ops-console", claims.ServiceName)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		_, _, err := GenerateAdminJWTWithToken(ctx, "ops-console", "wrong-token", store, cfg)
		if err == nil {
			t.Error("GenerateAdminJWTWithToken() error = nil, want error")
		}
	})

	t.Run("invalid service name", func(t *testing.T) {
		_, _, err := GenerateAdminJWTWithToken(ctx, "unknown-service", rawToken, store, cfg)
		if err == nil {
			t.Error("GenerateAdminJWTWithToken() error = nil for unknown service, want error")
		}
	})

	t.Run("disabled token", func(t *testing.T) {
		store.Put(&AdminToken{ServiceName: "disabled", TokenHash: tokenHash, Enabled: false})
		_, _, err := GenerateAdminJWTWithToken(ctx, "disabled", rawToken, store, cfg)
		if err == nil {
			t.Error("GenerateAdminJWTWithToken() error = nil for disabled token, want error")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		expired := time.Now().Add(-1 * time.Hour)
		store.Put(&AdminToken{ServiceName: "expired", TokenHash: tokenHash, Enabled: true, ExpiresAt: &expired})
		_, _, err := GenerateAdminJWTWithToken(ctx, "expired", rawToken, store, cfg)
		if err == nil {
			t.Error("GenerateAdminJWTWithToken() error = nil for expired token, want error")
		}
	})
}

func TestRole_HasPermission(t *testing.T) {
	tests := []struct {
		role     Role
		required Role
		want     bool
	}{
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleViewer, true},
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleAdmin, false},
		{Role("intern"), RoleViewer, false},
	}

	for _, tt := range tests {
		if got := tt.role.HasPermission(tt.required); got != tt.want {
			t.Errorf("%s.HasPermission(%s) = %v, want %v", tt.role, tt.required, got, tt.want)
		}
	}

	if !AnyHasPermission([]string{"viewer", "admin"}, RoleAdmin) {
		t.Error("AnyHasPermission() = false, want true")
	}
	if AnyHasPermission(nil, RoleViewer) {
		t.Error("AnyHasPermission(nil) = true, want false")
	}
}
