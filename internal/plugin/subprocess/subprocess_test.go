package subprocess

import (
	"context"
	"testing"

	"monitord/internal/probe"
	"monitord/internal/state"
)

func TestCollectFlattensResultObject(t *testing.T) {
	p := New()
	if err := p.Initialize(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// A minimal collector: ignores the request on stdin, answers with a
	// fixed JSON-RPC response.
	pr, err := p.CreateProbe("collect", probe.Descriptor{
		ID: "disk1",
		Config: map[string]any{
			"command":   "sh",
			"args":      []any{"-c", `cat >/dev/null; echo '{"jsonrpc":"2.0","id":1,"result":{"free_gb":120,"mount":"/data"}}'`},
			"namespace": "disk",
		},
	})
	if err != nil {
		t.Fatalf("CreateProbe: %v", err)
	}
	bag, err := pr.Collect(context.Background(), state.NewProbeState())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := bag["disk.status"].String(); got != "ok" {
		t.Fatalf("disk.status = %s, bag = %+v", got, bag)
	}
	if got := bag["disk.free_gb"].String(); got != "120" {
		t.Fatalf("disk.free_gb = %s", got)
	}
	if got := bag["disk.mount"].String(); got != "/data" {
		t.Fatalf("disk.mount = %s", got)
	}
}

func TestCollectConvertsSpawnFailureToSoftFacts(t *testing.T) {
	p := New()
	_ = p.Initialize(context.Background(), map[string]any{})
	pr, err := p.CreateProbe("collect", probe.Descriptor{
		ID:     "broken",
		Config: map[string]any{"command": "/nonexistent/collector"},
	})
	if err != nil {
		t.Fatalf("CreateProbe: %v", err)
	}
	bag, err := pr.Collect(context.Background(), state.NewProbeState())
	if err != nil {
		t.Fatalf("spawn failure must not fail the run: %v", err)
	}
	if got := bag["proc.status"].String(); got != "error" {
		t.Fatalf("proc.status = %s", got)
	}
}

func TestCreateProbeRequiresCommand(t *testing.T) {
	p := New()
	_ = p.Initialize(context.Background(), map[string]any{})
	if _, err := p.CreateProbe("collect", probe.Descriptor{ID: "x", Config: map[string]any{}}); err == nil {
		t.Fatalf("expected error for missing command")
	}
}
