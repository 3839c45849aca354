package upstream

import (
	"fmt"
	"net/http"

	"github.com/Chromeox/CourseScout-sub015/internal/config"
	"github.com/Chromeox/CourseScout-sub015/internal/models"
	"github.com/Chromeox/CourseScout-sub015/internal/registry"
)

// EndpointFromRoute builds a registry endpoint for a normalized route. Routes
// with an upstream URL share client; static routes answer from memory.
func EndpointFromRoute(rc config.RouteConfig, client *http.Client) (registry.Endpoint, error) {
	tier, err := models.ParseTier(rc.RequiredTier)
	if err != nil {
		return registry.Endpoint{}, err
	}

	var handler registry.Handler
	switch {
	case rc.Upstream != "":
		opts := []Option{}
		if client != nil {
			opts = append(opts, WithClient(client))
		}
		h, err := NewHTTPHandler(rc.Method+" "+rc.Path, rc.Upstream, opts...)
		if err != nil {
			return registry.Endpoint{}, err
		}
		handler = h
	case rc.Static != nil:
		handler = NewStaticHandler(rc.Static)
	default:
		return registry.Endpoint{}, fmt.Errorf("%s %s: no upstream or static reply", rc.Method, rc.Path)
	}

	return registry.Endpoint{
		Path:         rc.Path,
		Method:       rc.Method,
		Version:      rc.Version,
		RequiredTier: tier,
		Handler:      handler,
		Quota:        rc.Quota,
		Timeout:      rc.Timeout,
		Idempotent:   rc.IsIdempotent(),
		Description:  rc.Description,
	}, nil
}

// RegisterRoutes registers every route in the file. It stops at the first
// invalid or duplicate route.
func RegisterRoutes(reg *registry.Registry, routes []config.RouteConfig, client *http.Client) error {
	for _, rc := range routes {
		ep, err := EndpointFromRoute(rc, client)
		if err != nil {
			return err
		}
		if err := reg.Register(ep); err != nil {
			return err
		}
	}
	return nil
}
