package config

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// RouteFile is the YAML document listing tier quotas and gateway routes.
//
//	tiers:
//	  free: {limit: 100, window: 1m}
//	routes:
//	  - path: /courses
//	    method: GET
//	    version: v1
//	    required_tier: free
//	    upstream: http://course-search:8080
type RouteFile struct {
	Tiers  map[string]models.Quota `yaml:"tiers"`
	Routes []RouteConfig           `yaml:"routes"`
}

// RouteConfig describes one endpoint. Exactly one of Upstream or Static is set.
type RouteConfig struct {
	Path         string        `yaml:"path"`
	Method       string        `yaml:"method"`
	Version      string        `yaml:"version"`
	RequiredTier string        `yaml:"required_tier"`
	Upstream     string        `yaml:"upstream"`
	Static       any           `yaml:"static"`
	Timeout      time.Duration `yaml:"timeout"`
	Idempotent   *bool         `yaml:"idempotent"`
	Description  string        `yaml:"description"`
	Quota        *models.Quota `yaml:"quota"`
}

// IsIdempotent returns the configured flag, defaulting to true for safe methods.
func (r RouteConfig) IsIdempotent() bool {
	if r.Idempotent != nil {
		return *r.Idempotent
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// LoadRoutes reads and validates a route file. An empty path yields an
// empty file so the gateway can start with only dynamically registered routes.
func LoadRoutes(path string) (*RouteFile, error) {
	if path == "" {
		return &RouteFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return ParseRoutes(data)
}

// ParseRoutes decodes and validates a route file, normalizing methods,
// versions and tier names in place.
func ParseRoutes(data []byte) (*RouteFile, error) {
	var f RouteFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}

	for name, q := range f.Tiers {
		if _, err := models.ParseTier(name); err != nil {
			return nil, fmt.Errorf("tiers: %w", err)
		}
		if !q.Enabled() {
			return nil, fmt.Errorf("tiers.%s: limit and window must be positive", name)
		}
	}

	for i := range f.Routes {
		if err := f.Routes[i].Normalize(); err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
	}
	return &f, nil
}

// Normalize validates a route and canonicalizes its method, version and tier.
func (r *RouteConfig) Normalize() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("path %q must start with /", r.Path)
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.Version = strings.ToLower(strings.TrimSpace(r.Version))
	if r.Version == "" {
		return fmt.Errorf("%s %s: version is required", r.Method, r.Path)
	}

	tier := models.TierFree
	if r.RequiredTier != "" {
		t, err := models.ParseTier(r.RequiredTier)
		if err != nil {
			return fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
		}
		tier = t
	}
	r.RequiredTier = tier.String()

	if (r.Upstream == "") == (r.Static == nil) {
		return fmt.Errorf("%s %s: exactly one of upstream or static is required", r.Method, r.Path)
	}
	if r.Quota != nil && !r.Quota.Enabled() {
		return fmt.Errorf("%s %s: quota limit and window must be positive", r.Method, r.Path)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%s %s: timeout must not be negative", r.Method, r.Path)
	}
	return nil
}

// TierQuotas merges the file's overrides onto the default quotas.
func (f *RouteFile) TierQuotas() map[models.Tier]models.Quota {
	quotas := models.DefaultQuotas()
	for name, q := range f.Tiers {
		if t, err := models.ParseTier(name); err == nil {
			quotas[t] = q
		}
	}
	return quotas
}
