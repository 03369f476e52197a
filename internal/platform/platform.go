// Package platform implements the PlatformRegistry, the lifecycle
// manager for source-family plugins ("platforms"): registration,
// initialization, probe minting, health checks, and teardown.
package platform

import (
	"context"
	"fmt"
	"sync"

	"monitord/internal/probe"
)

// Descriptor is the static capability record each registered platform
// supplies.
type Descriptor struct {
	ID                 string
	DisplayName        string
	Version             string
	SupportedProbeTypes map[string]struct{}
}

func (d Descriptor) Supports(probeType string) bool {
	_, ok := d.SupportedProbeTypes[probeType]
	return ok
}

func (d Descriptor) SupportedTypesList() []string {
	out := make([]string, 0, len(d.SupportedProbeTypes))
	for t := range d.SupportedProbeTypes {
		out = append(out, t)
	}
	return out
}

// Platform is the capability set every source family plugin must satisfy.
type Platform interface {
	Describe() Descriptor
	Initialize(ctx context.Context, config map[string]any) error
	CreateProbe(probeType string, descriptor probe.Descriptor) (probe.Probe, error)
	Destroy(ctx context.Context) error
	HealthCheck(ctx context.Context) bool
}

// Config is the per-platform entry from the engine's configuration.
type Config struct {
	Platform string
	Enabled  bool
	Config   map[string]any
}

// Registry is a named collection of Platform plugins.
type Registry struct {
	mu        sync.Mutex
	platforms map[string]Platform
}

func NewRegistry() *Registry {
	return &Registry{platforms: map[string]Platform{}}
}

// Register fails if a platform with the same id is already present.
func (r *Registry) Register(p Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.Describe().ID
	if _, exists := r.platforms[id]; exists {
		return fmt.Errorf("platform %q already registered", id)
	}
	r.platforms[id] = p
	return nil
}

// InitializeAll invokes Initialize on each registered platform that is
// enabled in configs (default enabled). A failure in any
// single platform's initialization aborts startup and names the
// platform id in the returned error.
func (r *Registry) InitializeAll(ctx context.Context, configs []Config) error {
	byID := map[string]Config{}
	for _, c := range configs {
		byID[c.Platform] = c
	}
	r.mu.Lock()
	snapshot := make(map[string]Platform, len(r.platforms))
	for id, p := range r.platforms {
		snapshot[id] = p
	}
	r.mu.Unlock()

	for id, p := range snapshot {
		cfg, configured := byID[id]
		enabled := !configured || cfg.Enabled
		if configured && !cfg.Enabled {
			enabled = false
		} else if !configured {
			enabled = true
		}
		if !enabled {
			continue
		}
		if err := p.Initialize(ctx, cfg.Config); err != nil {
			return fmt.Errorf("platform %q: %w", id, err)
		}
	}
	return nil
}

func (r *Registry) Get(id string) (Platform, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.platforms[id]
	return p, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry) GetAll() []Platform {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		out = append(out, p)
	}
	return out
}

// DestroyAll invokes Destroy on every registered platform, tolerating
// per-platform errors: they are returned in the map, never panicked or
// rethrown as a single aggregate failure.
func (r *Registry) DestroyAll(ctx context.Context) map[string]error {
	errs := map[string]error{}
	for _, p := range r.GetAll() {
		if err := p.Destroy(ctx); err != nil {
			errs[p.Describe().ID] = err
		}
	}
	return errs
}

// HealthStatus fans out HealthCheck concurrently across all platforms.
func (r *Registry) HealthStatus(ctx context.Context) map[string]bool {
	platforms := r.GetAll()
	results := make(map[string]bool, len(platforms))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range platforms {
		wg.Add(1)
		go func(p Platform) {
			defer wg.Done()
			ok := p.HealthCheck(ctx)
			mu.Lock()
			results[p.Describe().ID] = ok
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}

// CreateProbe resolves a probe descriptor to a concrete Probe via the
// registry, rejecting probe types the platform does not support with a
// message enumerating the allowed set.
func (r *Registry) CreateProbe(descriptor probe.Descriptor) (probe.Probe, error) {
	p, ok := r.Get(descriptor.Platform)
	if !ok {
		return nil, fmt.Errorf("platform %q is not registered", descriptor.Platform)
	}
	d := p.Describe()
	if !d.Supports(descriptor.Type) {
		return nil, fmt.Errorf("platform %q does not support probe type %q, supported types: %v", descriptor.Platform, descriptor.Type, d.SupportedTypesList())
	}
	return p.CreateProbe(descriptor.Type, descriptor)
}
