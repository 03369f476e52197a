package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"monitord/internal/probe"
	"monitord/internal/state"
)

func buildProbe(t *testing.T, url string, fields map[string]any) probe.Probe {
	t.Helper()
	p := New()
	if err := p.Initialize(context.Background(), map[string]any{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	pr, err := p.CreateProbe("poll", probe.Descriptor{
		ID:     "api1",
		Config: map[string]any{"url": url, "fields": fields},
	})
	if err != nil {
		t.Fatalf("CreateProbe: %v", err)
	}
	return pr
}

func TestCollectExtractsConfiguredFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"price":42.5,"name":"widget"},"count":3}`))
	}))
	defer srv.Close()

	pr := buildProbe(t, srv.URL, map[string]any{"price": "data.price", "count": "count", "missing": "data.nope"})
	bag, err := pr.Collect(context.Background(), state.NewProbeState())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := bag["http.status"].String(); got != "200" {
		t.Fatalf("http.status = %s", got)
	}
	if got := bag["http.price"].String(); got != "42.5" {
		t.Fatalf("http.price = %s", got)
	}
	if got := bag["http.count"].String(); got != "3" {
		t.Fatalf("http.count = %s", got)
	}
	if !bag["http.missing"].IsNull() {
		t.Fatalf("absent path must produce a null fact, got %s", bag["http.missing"].String())
	}
}

func TestCollectConvertsRequestFailureToSoftFacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	srv.Close() // connection refused from here on

	pr := buildProbe(t, srv.URL, nil)
	bag, err := pr.Collect(context.Background(), state.NewProbeState())
	if err != nil {
		t.Fatalf("request failure must not fail the run: %v", err)
	}
	if got := bag["http.status"].String(); got != "error" {
		t.Fatalf("http.status = %s", got)
	}
	if bag["http.error"].IsNull() {
		t.Fatalf("expected http.error fact")
	}
}

func TestCreateProbeRequiresURL(t *testing.T) {
	p := New()
	_ = p.Initialize(context.Background(), map[string]any{})
	if _, err := p.CreateProbe("poll", probe.Descriptor{ID: "x", Config: map[string]any{}}); err == nil {
		t.Fatalf("expected error for missing url")
	}
}
