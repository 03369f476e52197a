package alert

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"monitord/internal/state"
)

type countingChannel struct {
	name  string
	count atomic.Int32
	fail  bool
}

func (c *countingChannel) Name() string { return c.name }

func (c *countingChannel) Send(ctx context.Context, a Alert) error {
	c.count.Add(1)
	if c.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func newManager(t *testing.T, cooldown time.Duration) (*Manager, *countingChannel, state.Store) {
	t.Helper()
	store := state.NewMemoryStore()
	set := NewChannelSet(nil)
	ch := &countingChannel{name: "test"}
	set.Register(ch)
	mgr := NewManager(store, set, nil).WithCooldown(cooldown)
	return mgr, ch, store
}

func TestMuteTransparency(t *testing.T) {
	mgr, ch, store := newManager(t, 15*time.Minute)
	ctx := context.Background()
	probeState := state.NewProbeState()
	probeState.Probe["muted_until"] = float64(time.Now().Add(30 * time.Minute).UnixMilli())

	for i := 0; i < 5; i++ {
		mgr.Process(ctx, Alert{ID: "p:r:breach", ProbeID: "p", RuleID: "r"}, probeState)
	}

	if ch.count.Load() != 0 {
		t.Fatalf("expected zero channel sends while muted, got %d", ch.count.Load())
	}
	sent, _ := store.IsAlertSent(ctx, "p:r:breach", 0)
	if sent {
		t.Fatalf("expected no dedup record while muted")
	}
	cooling, _ := store.IsInCooldown(ctx, "p:r", time.Minute)
	if cooling {
		t.Fatalf("expected no cooldown record while muted")
	}
}

func TestDedupIdempotence(t *testing.T) {
	mgr, ch, store := newManager(t, 15*time.Minute)
	ctx := context.Background()
	probeState := state.NewProbeState()

	mgr.Process(ctx, Alert{ID: "p:r:breach", ProbeID: "p", RuleID: "r"}, probeState)
	if ch.count.Load() != 1 {
		t.Fatalf("expected one send, got %d", ch.count.Load())
	}

	for i := 0; i < 3; i++ {
		mgr.Process(ctx, Alert{ID: "p:r:breach", ProbeID: "p", RuleID: "r"}, probeState)
	}
	if ch.count.Load() != 1 {
		t.Fatalf("expected dedup to suppress repeats, got %d sends", ch.count.Load())
	}
	_ = store
}

func TestCooldownSuppressesDistinctAlertIDs(t *testing.T) {
	mgr, ch, _ := newManager(t, 50*time.Millisecond)
	ctx := context.Background()
	probeState := state.NewProbeState()

	mgr.Process(ctx, Alert{ID: "p:r:breach-1", ProbeID: "p", RuleID: "r"}, probeState)
	mgr.Process(ctx, Alert{ID: "p:r:breach-2", ProbeID: "p", RuleID: "r"}, probeState)
	if ch.count.Load() != 1 {
		t.Fatalf("expected second distinct alert id to be suppressed by cooldown, got %d sends", ch.count.Load())
	}

	time.Sleep(60 * time.Millisecond)
	mgr.Process(ctx, Alert{ID: "p:r:breach-3", ProbeID: "p", RuleID: "r"}, probeState)
	if ch.count.Load() != 2 {
		t.Fatalf("expected a send after the cooldown window elapsed, got %d", ch.count.Load())
	}
}

func TestChannelFailureStillRecordsDedupAndCooldown(t *testing.T) {
	store := state.NewMemoryStore()
	set := NewChannelSet(nil)
	set.Register(&countingChannel{name: "flaky", fail: true})
	mgr := NewManager(store, set, nil)
	ctx := context.Background()

	mgr.Process(ctx, Alert{ID: "p:r:breach", ProbeID: "p", RuleID: "r"}, state.NewProbeState())

	sent, _ := store.IsAlertSent(ctx, "p:r:breach", 0)
	if !sent {
		t.Fatalf("expected dedup record despite channel failure")
	}
	cooling, _ := store.IsInCooldown(ctx, "p:r", time.Minute)
	if !cooling {
		t.Fatalf("expected cooldown record despite channel failure")
	}
}
