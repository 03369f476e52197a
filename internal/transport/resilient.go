package transport

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"monitord/internal/breaker"
	"monitord/internal/ratelimit"
)

// Guard couples the circuit breaker and rate limiter protecting one
// logical upstream. Every call to that upstream, from any probe of any
// platform, goes through the same Guard so the circuit state reflects
// the upstream's real health rather than one probe's view of it.
type Guard struct {
	Breaker *breaker.Breaker
	Limiter *ratelimit.Limiter
}

// Guarded runs fn behind g: it first waits for rate-limit admission,
// then executes under the circuit breaker. A fast-fail while the breaker
// is open surfaces as *breaker.OpenError without fn being invoked.
func Guarded[T any](ctx context.Context, g *Guard, fn func() (T, error)) (T, error) {
	var zero T
	if g == nil {
		return fn()
	}
	if err := g.Limiter.Wait(ctx); err != nil {
		return zero, err
	}
	return breaker.Execute(g.Breaker, fn)
}

// GuardConfig holds the per-upstream resilience tunables a Pool applies
// to every guard it mints.
type GuardConfig struct {
	MaxRequests         int
	Window              time.Duration
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MaxRequests:         10,
		Window:              time.Second,
		FailureThreshold:    5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxAttempts: 2,
	}
}

// Pool maps an upstream key to its (limiter, breaker) pair, minting one
// pair per key on first use. Keys are scoped by hostname for HTTP
// upstreams and by full URL for RPC endpoints, so that all probes
// sharing a host also share circuit state.
type Pool struct {
	mu     sync.Mutex
	cfg    GuardConfig
	guards map[string]*Guard
}

func NewPool(cfg GuardConfig) *Pool {
	def := DefaultGuardConfig()
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = def.HalfOpenMaxAttempts
	}
	return &Pool{cfg: cfg, guards: map[string]*Guard{}}
}

// Guard returns the guard for key, creating it on first use.
func (p *Pool) Guard(key string) *Guard {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.guards[key]; ok {
		return g
	}
	g := &Guard{
		Breaker: breaker.New(breaker.Config{
			Service:             key,
			FailureThreshold:    p.cfg.FailureThreshold,
			ResetTimeout:        p.cfg.ResetTimeout,
			HalfOpenMaxAttempts: p.cfg.HalfOpenMaxAttempts,
		}),
		Limiter: ratelimit.New(p.cfg.MaxRequests, p.cfg.Window),
	}
	p.guards[key] = g
	return g
}

// HostKey reduces a URL to its hostname for guard scoping, falling back
// to the raw string when it does not parse.
func HostKey(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return raw
	}
	return parsed.Hostname()
}

// Metrics snapshots every guard's breaker state for diagnostics.
func (p *Pool) Metrics() map[string]breaker.Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]breaker.Metrics, len(p.guards))
	for key, g := range p.guards {
		out[key] = g.Breaker.Metrics()
	}
	return out
}

// Resilient wraps an RPC with a Guard so every Call waits for rate-limit
// admission and runs under the upstream's circuit breaker.
type Resilient struct {
	Inner RPC
	Guard *Guard
}

func (r *Resilient) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return Guarded(ctx, r.Guard, func() (json.RawMessage, error) {
		return r.Inner.Call(ctx, method, params)
	})
}
