package scheduler

import (
	"context"
	"testing"
	"time"

	"monitord/internal/alert"
	"monitord/internal/fact"
	"monitord/internal/probe"
	"monitord/internal/state"
)

type stubProbe struct {
	bag   fact.Bag
	err   error
	block chan struct{}
}

func (p *stubProbe) Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.bag, p.err
}

type hangingProbe struct {
	block chan struct{}
}

func (p *hangingProbe) Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error) {
	<-p.block
	return fact.Bag{}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore()
	mgr := alert.NewManager(store, alert.NewChannelSet(nil), nil)
	return NewRegistry(store, mgr, nil), store
}

func waitForRun(t *testing.T, store *state.MemoryStore, probeID string, count int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := store.RecentRuns(context.Background(), 50)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		n := 0
		for _, r := range runs {
			if r.ProbeID == probeID {
				n++
			}
		}
		if n >= count {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d run(s) of %s", count, probeID)
}

func TestScheduleRunsImmediatelyOnArm(t *testing.T) {
	reg, store := newTestRegistry(t)
	defer reg.Stop()

	descriptor := probe.Descriptor{ID: "p1", Enabled: true, Interval: time.Hour, Timeout: time.Second}
	if err := reg.Schedule(descriptor, &stubProbe{bag: fact.Bag{}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	waitForRun(t, store, "p1", 1)
}

func TestSingleFlightSkipsOverlappingTick(t *testing.T) {
	reg, store := newTestRegistry(t)
	defer reg.Stop()

	block := make(chan struct{})
	descriptor := probe.Descriptor{ID: "p1", Enabled: true, Interval: time.Hour, Timeout: time.Second}
	sp := &stubProbe{bag: fact.Bag{}, block: block}
	if err := reg.Schedule(descriptor, sp); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// the immediate run is now blocked inside Collect; RunOnce must be a no-op
	time.Sleep(20 * time.Millisecond)
	if err := reg.RunOnce("p1"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	close(block)
	waitForRun(t, store, "p1", 1)

	runs, _ := store.RecentRuns(context.Background(), 50)
	count := 0
	for _, r := range runs {
		if r.ProbeID == "p1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one recorded run from the overlapping tick, got %d", count)
	}
}

func TestWatchdogForceReleasesStuckLockAndAlerts(t *testing.T) {
	reg, store := newTestRegistry(t)
	defer reg.Stop()

	// hangingProbe ignores ctx cancellation entirely, the way a buggy
	// probe that swallowed its own deadline would.
	block := make(chan struct{})
	descriptor := probe.Descriptor{ID: "p1", Enabled: true, Interval: time.Hour, Timeout: 10 * time.Millisecond}
	if err := reg.Schedule(descriptor, &hangingProbe{block: block}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// the first run times out after 10ms but Collect is still in flight,
	// so the lock stays held past 2x timeout (20ms).
	time.Sleep(60 * time.Millisecond)
	if err := reg.RunOnce("p1"); err != nil {
		t.Fatalf("RunOnce after watchdog: %v", err)
	}
	close(block)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sent, _ := store.IsAlertSent(context.Background(), "p1:system:stuck", 0)
		if sent {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected watchdog to have synthesized a stuck alert")
}

func TestEnableDisableIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	defer reg.Stop()

	descriptor := probe.Descriptor{ID: "p1", Enabled: false, Interval: time.Hour, Timeout: time.Second}
	if err := reg.Schedule(descriptor, &stubProbe{bag: fact.Bag{}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := reg.Running(); len(got) != 0 {
		t.Fatalf("expected no running probes, got %v", got)
	}

	if err := reg.Enable("p1"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := reg.Enable("p1"); err != nil {
		t.Fatalf("second Enable should be a no-op, got %v", err)
	}
	if got := reg.Running(); len(got) != 1 {
		t.Fatalf("expected one running probe, got %v", got)
	}

	if err := reg.Disable("p1"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := reg.Disable("p1"); err != nil {
		t.Fatalf("second Disable should be a no-op, got %v", err)
	}
	if got := reg.Running(); len(got) != 0 {
		t.Fatalf("expected no running probes after Disable, got %v", got)
	}
}

func TestMuteSuppressesAlerts(t *testing.T) {
	reg, store := newTestRegistry(t)
	defer reg.Stop()

	threshold := 0.0
	descriptor := probe.Descriptor{
		ID: "p1", Enabled: false, Interval: time.Hour, Timeout: time.Second,
		Rules: []probe.RuleDescriptor{{ID: "r1", Kind: "threshold", Fact: "metric.x", Operator: ">", Threshold: &threshold}},
	}
	if err := reg.Schedule(descriptor, &stubProbe{bag: fact.Bag{"metric.x": fact.FloatValue(1)}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := reg.Mute(context.Background(), "p1", 10); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if err := reg.RunOnce("p1"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	waitForRun(t, store, "p1", 1)

	sent, _ := store.IsAlertSent(context.Background(), "p1:r1:breach", 0)
	if sent {
		t.Fatalf("expected muted probe to suppress its alert")
	}
}

func TestMuteMinutesMustBePositive(t *testing.T) {
	reg, _ := newTestRegistry(t)
	defer reg.Stop()

	descriptor := probe.Descriptor{ID: "p1", Enabled: false, Interval: time.Hour, Timeout: time.Second}
	if err := reg.Schedule(descriptor, &stubProbe{bag: fact.Bag{}}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := reg.Mute(context.Background(), "p1", 0); err == nil {
		t.Fatalf("expected error for non-positive minutes")
	}
}

func TestUnknownProbeOperationsReturnNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	defer reg.Stop()

	if err := reg.Enable("nope"); err == nil {
		t.Fatalf("expected NotFoundError from Enable")
	}
	if err := reg.Disable("nope"); err == nil {
		t.Fatalf("expected NotFoundError from Disable")
	}
	if err := reg.RunOnce("nope"); err == nil {
		t.Fatalf("expected NotFoundError from RunOnce")
	}
}
