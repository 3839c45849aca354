package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// Handler is the downstream capability an endpoint dispatches to. It must
// honor ctx cancellation; its result is discarded once ctx is done.
type Handler interface {
	Handle(ctx context.Context, req *models.RequestEnvelope) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *models.RequestEnvelope) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req *models.RequestEnvelope) (any, error) {
	return f(ctx, req)
}

// Endpoint is a routable (path, method, version) with its access rules.
// Endpoints handed out by the Registry are shared and must not be modified.
type Endpoint struct {
	Path         string
	Method       string
	Version      string
	RequiredTier models.Tier
	Handler      Handler
	Quota        *models.Quota // optional per-key quota on this endpoint
	Timeout      time.Duration // zero means the gateway default
	Idempotent   bool
	Description  string
}

// Identity is the canonical "METHOD path version" string.
func (e *Endpoint) Identity() string {
	return e.Method + " " + e.Path + " " + e.Version
}

// RateQuota returns the endpoint's own quota, if set.
func (e *Endpoint) RateQuota() (models.Quota, bool) {
	if e.Quota == nil || !e.Quota.Enabled() {
		return models.Quota{}, false
	}
	return *e.Quota, true
}

// VisibleTo reports whether a caller on tier may use the endpoint.
func (e *Endpoint) VisibleTo(tier models.Tier) bool {
	return tier.AtLeast(e.RequiredTier)
}

// NormalizePath trims whitespace and trailing slashes; the root stays "/".
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// NormalizeMethod upper-cases a method name.
func NormalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}

// NormalizeVersion lower-cases a version label.
func NormalizeVersion(version string) string {
	return strings.ToLower(strings.TrimSpace(version))
}

func (e *Endpoint) normalize() error {
	e.Path = NormalizePath(e.Path)
	e.Method = NormalizeMethod(e.Method)
	e.Version = NormalizeVersion(e.Version)

	switch {
	case !strings.HasPrefix(e.Path, "/"):
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidEndpoint, e.Path)
	case e.Method == "":
		return fmt.Errorf("%w: %s: method is required", ErrInvalidEndpoint, e.Path)
	case e.Version == "":
		return fmt.Errorf("%w: %s %s: version is required", ErrInvalidEndpoint, e.Method, e.Path)
	case !e.RequiredTier.Valid():
		return fmt.Errorf("%w: %s: unknown tier %q", ErrInvalidEndpoint, e.Identity(), e.RequiredTier)
	case e.Handler == nil:
		return fmt.Errorf("%w: %s: handler is required", ErrInvalidEndpoint, e.Identity())
	case e.Quota != nil && !e.Quota.Enabled():
		return fmt.Errorf("%w: %s: quota limit and window must be positive", ErrInvalidEndpoint, e.Identity())
	case e.Timeout < 0:
		return fmt.Errorf("%w: %s: negative timeout", ErrInvalidEndpoint, e.Identity())
	}
	if e.Quota != nil {
		q := *e.Quota
		e.Quota = &q
	}
	return nil
}

// compareVersions orders "v2" after "v1" and "v10" after "v9". Labels that
// are not of the form v<N> fall back to string order after numeric ones.
func compareVersions(a, b string) int {
	na, okA := versionNumber(a)
	nb, okB := versionNumber(b)
	switch {
	case okA && okB:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

func versionNumber(v string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(v, "v"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
