package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/auth"
	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/storage"
	"github.com/Chromeox/CourseScout-sub015/internal/utils"
)

// init-admin stores a bootstrap admin service token in the database so the
// admin API can be reached without ADMIN_TOKEN_HASH in the gateway's
// environment.
func main() {
	fmt.Println("API Gateway - Bootstrap Admin Token")

	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load configuration: %v", err)
	}
	if !cfg.Database.Enabled() {
		fail("DATABASE_URL must be set")
	}

	service := os.Getenv("ADMIN_BOOTSTRAP_SERVICE")
	token := os.Getenv("ADMIN_BOOTSTRAP_TOKEN")
	if service == "" || token == "" {
		fail("ADMIN_BOOTSTRAP_SERVICE and ADMIN_BOOTSTRAP_TOKEN must be set")
	}
	if len(token) < 16 {
		fail("Token must be at least 16 characters long")
	}

	roles, err := parseRoles(os.Getenv("ADMIN_BOOTSTRAP_ROLES"))
	if err != nil {
		fail("%v", err)
	}
	force := os.Getenv("ADMIN_BOOTSTRAP_FORCE") == "true"

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(cfg.Database, cfg.Cache)
	if err != nil {
		fail("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		fail("Failed to migrate database: %v", err)
	}

	repo := db.NewAdminTokenRepository()
	existing, err := repo.GetAdminTokenByServiceName(ctx, service)
	switch {
	case err == nil && !force:
		fmt.Printf("INFO: Service %s already has a token (roles %v, enabled %t)\n", existing.ServiceName, existing.Roles, existing.Enabled)
		fmt.Println("Set ADMIN_BOOTSTRAP_FORCE=true to rotate it. Exiting (no action taken)")
		return
	case err != nil && !errors.Is(err, storage.ErrAdminTokenNotFound):
		fail("Failed to check for existing token: %v", err)
	}

	fmt.Println("Hashing token using Argon2...")
	hash, err := utils.HashPasswordArgon2(token)
	if err != nil {
		fail("Failed to hash token: %v", err)
	}

	if err := repo.Upsert(ctx, &auth.AdminToken{
		ServiceName: service,
		TokenHash:   hash,
		Roles:       roles,
		Enabled:     true,
	}); err != nil {
		fail("Failed to store token: %v", err)
	}

	fmt.Printf("SUCCESS: admin token stored for service %s with roles %v\n", service, roles)
	fmt.Println("Exchange it at POST /admin/auth/token, then remove ADMIN_BOOTSTRAP_TOKEN from the environment.")
}

// parseRoles reads a comma separated role list; empty means admin.
func parseRoles(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return []string{string(auth.RoleAdmin)}, nil
	}
	var roles []string
	for _, r := range strings.Split(s, ",") {
		role := auth.Role(strings.TrimSpace(r))
		if !role.IsValid() {
			return nil, fmt.Errorf("unknown role %q", r)
		}
		roles = append(roles, role.String())
	}
	return roles, nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	os.Exit(1)
}
