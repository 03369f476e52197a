// Package engine is the façade the admin HTTP surface and the NATS
// control-plane subscriber both call through: a single narrow-waist
// entry point onto the scheduler and the state store, so neither
// transport needs to know about scheduler.Registry internals directly.
package engine

import (
	"context"
	"sync"

	"monitord/internal/platform"
	"monitord/internal/probe"
	"monitord/internal/scheduler"
	"monitord/internal/state"
)

// Engine is constructed once at startup from the wired Registry,
// platform.Registry, and Store, and is the only dependency cmd/monitord's
// transports need to hold.
type Engine struct {
	scheduler *scheduler.Registry
	platforms *platform.Registry
	store     state.Store

	mu     sync.Mutex
	probes map[string]probe.Descriptor
}

func New(sched *scheduler.Registry, platforms *platform.Registry, store state.Store) *Engine {
	return &Engine{scheduler: sched, platforms: platforms, store: store, probes: map[string]probe.Descriptor{}}
}

// RegisterProbe arms a probe descriptor against both the scheduler and the
// engine's own descriptor table, which ListProbes serves from.
func (e *Engine) RegisterProbe(descriptor probe.Descriptor) error {
	instance, err := e.platforms.CreateProbe(descriptor)
	if err != nil {
		return err
	}
	if err := e.scheduler.Schedule(descriptor, instance); err != nil {
		return err
	}
	e.mu.Lock()
	e.probes[descriptor.ID] = descriptor
	e.mu.Unlock()
	return nil
}

func (e *Engine) ListProbes() []probe.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]probe.Descriptor, 0, len(e.probes))
	for _, d := range e.probes {
		out = append(out, d)
	}
	return out
}

// RunningProbes reports the ids of probes currently armed with a live
// timer.
func (e *Engine) RunningProbes() []string {
	return e.scheduler.Running()
}

// PlatformHealth fans out every registered platform's health check.
func (e *Engine) PlatformHealth(ctx context.Context) map[string]bool {
	return e.platforms.HealthStatus(ctx)
}

func (e *Engine) knows(probeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.probes[probeID]
	return ok
}

func (e *Engine) ListRecentAlerts(ctx context.Context, limit int) ([]state.DedupRecord, error) {
	return e.store.RecentAlerts(ctx, limit)
}

func (e *Engine) ListRecentRuns(ctx context.Context, limit int) ([]state.RunRecord, error) {
	return e.store.RecentRuns(ctx, limit)
}

func (e *Engine) LoadProbeState(ctx context.Context, probeID string) (state.ProbeState, error) {
	if !e.knows(probeID) {
		return state.ProbeState{}, &NotFoundError{ProbeID: probeID}
	}
	return e.store.LoadProbeState(ctx, probeID)
}

func (e *Engine) RunOnce(probeID string) error {
	if !e.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	return e.scheduler.RunOnce(probeID)
}

func (e *Engine) Enable(probeID string) error {
	if !e.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	return e.scheduler.Enable(probeID)
}

func (e *Engine) Disable(probeID string) error {
	if !e.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	return e.scheduler.Disable(probeID)
}

func (e *Engine) Mute(ctx context.Context, probeID string, minutes int) error {
	if !e.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	return e.scheduler.Mute(ctx, probeID, minutes)
}

func (e *Engine) Unmute(ctx context.Context, probeID string) error {
	if !e.knows(probeID) {
		return &NotFoundError{ProbeID: probeID}
	}
	return e.scheduler.Unmute(ctx, probeID)
}

func (e *Engine) Shutdown(ctx context.Context) {
	e.scheduler.Stop()
	e.platforms.DestroyAll(ctx)
	e.store.Close()
}

// NotFoundError is distinct from scheduler.NotFoundError so transports can
// distinguish "never registered with the engine" from scheduler-internal
// bookkeeping failures.
type NotFoundError struct {
	ProbeID string
}

func (err *NotFoundError) Error() string { return "probe not found: " + err.ProbeID }
