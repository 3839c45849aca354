// Package registry holds the gateway routing table.
//
// The table is an immutable snapshot behind an atomic pointer. Writers are
// serialized and publish a complete new snapshot, so resolution never takes a
// lock and never observes a partial update.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

type routeKey struct {
	path, method, version string
}

type pathMethod struct {
	path, method string
}

type snapshot struct {
	byKey map[routeKey]*Endpoint
	// latest maps (path, method) to its highest registered version
	latest map[pathMethod]*Endpoint
	// sorted lists every endpoint by path, method, version
	sorted []*Endpoint
}

// Registry is safe for concurrent use.
type Registry struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

func New() *Registry {
	r := &Registry{}
	r.snap.Store(buildSnapshot(map[routeKey]*Endpoint{}))
	return r
}

// Register adds an endpoint. It fails with ErrDuplicateEndpoint if the
// (path, method, version) identity is already registered.
func (r *Registry) Register(ep Endpoint) error {
	if err := ep.normalize(); err != nil {
		return err
	}
	return r.update(func(m map[routeKey]*Endpoint) error {
		k := keyOf(&ep)
		if _, exists := m[k]; exists {
			return &duplicateError{identity: ep.Identity()}
		}
		m[k] = &ep
		return nil
	})
}

// Upsert adds an endpoint or replaces the one with the same identity.
func (r *Registry) Upsert(ep Endpoint) error {
	if err := ep.normalize(); err != nil {
		return err
	}
	return r.update(func(m map[routeKey]*Endpoint) error {
		m[keyOf(&ep)] = &ep
		return nil
	})
}

// Deregister removes an endpoint and reports whether it existed.
func (r *Registry) Deregister(path, method, version string) bool {
	k := routeKey{NormalizePath(path), NormalizeMethod(method), NormalizeVersion(version)}
	removed := false
	_ = r.update(func(m map[routeKey]*Endpoint) error {
		if _, ok := m[k]; ok {
			delete(m, k)
			removed = true
		}
		return nil
	})
	return removed
}

// Resolve finds the endpoint for (path, method, version). An empty version
// selects the highest registered version of (path, method).
func (r *Registry) Resolve(path, method, version string) (*Endpoint, error) {
	s := r.snap.Load()
	p, m, v := NormalizePath(path), NormalizeMethod(method), NormalizeVersion(version)

	var ep *Endpoint
	if v == "" {
		ep = s.latest[pathMethod{p, m}]
	} else {
		ep = s.byKey[routeKey{p, m, v}]
	}
	if ep == nil {
		return nil, &NotFoundError{Path: path, Method: method, Version: version}
	}
	return ep, nil
}

// ListAvailable returns every endpoint visible to tier, ordered by path,
// method and version.
func (r *Registry) ListAvailable(tier models.Tier) []*Endpoint {
	s := r.snap.Load()
	out := make([]*Endpoint, 0, len(s.sorted))
	for _, ep := range s.sorted {
		if ep.VisibleTo(tier) {
			out = append(out, ep)
		}
	}
	return out
}

// All returns every registered endpoint in listing order.
func (r *Registry) All() []*Endpoint {
	s := r.snap.Load()
	out := make([]*Endpoint, len(s.sorted))
	copy(out, s.sorted)
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return len(r.snap.Load().byKey)
}

func (r *Registry) update(fn func(m map[routeKey]*Endpoint) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snap.Load().byKey
	next := make(map[routeKey]*Endpoint, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	if err := fn(next); err != nil {
		return err
	}
	r.snap.Store(buildSnapshot(next))
	return nil
}

func keyOf(ep *Endpoint) routeKey {
	return routeKey{ep.Path, ep.Method, ep.Version}
}

func buildSnapshot(byKey map[routeKey]*Endpoint) *snapshot {
	s := &snapshot{
		byKey:  byKey,
		latest: make(map[pathMethod]*Endpoint),
		sorted: make([]*Endpoint, 0, len(byKey)),
	}
	for _, ep := range byKey {
		s.sorted = append(s.sorted, ep)

		pm := pathMethod{ep.Path, ep.Method}
		if cur, ok := s.latest[pm]; !ok || compareVersions(ep.Version, cur.Version) > 0 {
			s.latest[pm] = ep
		}
	}
	sort.Slice(s.sorted, func(i, j int) bool {
		a, b := s.sorted[i], s.sorted[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return compareVersions(a.Version, b.Version) < 0
	})
	return s
}

type duplicateError struct {
	identity string
}

func (e *duplicateError) Error() string {
	return ErrDuplicateEndpoint.Error() + ": " + e.identity
}

func (e *duplicateError) Unwrap() error {
	return ErrDuplicateEndpoint
}
