// Package httpapi implements a Platform that polls a REST JSON endpoint
// and publishes selected response fields as facts. It is deliberately
// schema-agnostic: the only assumption is that the response body is a
// JSON object, and configured dotted paths select the values to publish.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"monitord/internal/breaker"
	"monitord/internal/fact"
	"monitord/internal/platform"
	"monitord/internal/probe"
	"monitord/internal/state"
	"monitord/internal/transport"
)

const probeTypePoll = "poll"

type Platform struct {
	client *http.Client
	pool   *transport.Pool
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Describe() platform.Descriptor {
	return platform.Descriptor{
		ID:                  "httpapi",
		DisplayName:         "HTTP JSON API",
		Version:             "1.0.0",
		SupportedProbeTypes: map[string]struct{}{probeTypePoll: {}},
	}
}

func (p *Platform) Initialize(ctx context.Context, config map[string]any) error {
	timeout := 10 * time.Second
	if raw, ok := config["timeout"].(string); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("httpapi: config.timeout: %w", err)
		}
		timeout = d
	}
	// One client for the whole platform; guards are minted per hostname
	// so circuit state is meaningful across probes of the same API.
	p.client = &http.Client{Timeout: timeout}
	p.pool = transport.NewPool(transport.GuardConfig{})
	return nil
}

func (p *Platform) CreateProbe(probeType string, descriptor probe.Descriptor) (probe.Probe, error) {
	if probeType != probeTypePoll {
		return nil, fmt.Errorf("httpapi: unsupported probe type %q", probeType)
	}
	rawURL, _ := descriptor.Config["url"].(string)
	if rawURL == "" {
		return nil, fmt.Errorf("httpapi: probe %q: config.url is required", descriptor.ID)
	}
	fields := map[string]string{}
	if raw, ok := descriptor.Config["fields"].(map[string]any); ok {
		for alias, path := range raw {
			if s, ok := path.(string); ok {
				fields[alias] = s
			}
		}
	}
	return &probeImpl{
		client: p.client,
		guard:  p.pool.Guard(transport.HostKey(rawURL)),
		url:    rawURL,
		fields: fields,
	}, nil
}

func (p *Platform) Destroy(ctx context.Context) error {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	return nil
}

func (p *Platform) HealthCheck(ctx context.Context) bool {
	if p.pool == nil {
		return false
	}
	for _, m := range p.pool.Metrics() {
		if m.State == breaker.Open {
			return false
		}
	}
	return true
}

type probeImpl struct {
	client *http.Client
	guard  *transport.Guard
	url    string
	fields map[string]string
}

// Collect fetches the configured URL and publishes http.status plus one
// http.<alias> fact per configured field. Request-level failures become
// soft facts (http.status = "error") rather than run failures; a
// breaker-open fast-fail is rethrown so the run is recorded as an error.
func (pr *probeImpl) Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error) {
	bag := fact.Bag{}
	result, err := transport.Guarded(ctx, pr.guard, func() (fetched, error) {
		return pr.fetch(ctx)
	})
	if err != nil {
		var open *breaker.OpenError
		if errors.As(err, &open) {
			return nil, err
		}
		bag.Set("http.status", "error")
		bag.Set("http.error", err.Error())
		return bag, nil
	}
	bag.Set("http.status", int64(result.status))
	for alias, path := range pr.fields {
		bag["http."+alias] = fact.From(lookupPath(result.doc, path))
	}
	return bag, nil
}

type fetched struct {
	status int
	doc    map[string]any
}

func (pr *probeImpl) fetch(ctx context.Context) (fetched, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pr.url, nil)
	if err != nil {
		return fetched{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := pr.client.Do(req)
	if err != nil {
		return fetched{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fetched{}, fmt.Errorf("httpapi: %s returned status %d", pr.url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetched{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fetched{}, fmt.Errorf("httpapi: response is not a JSON object: %w", err)
	}
	return fetched{status: resp.StatusCode, doc: doc}, nil
}

// lookupPath walks a dotted path through nested JSON objects, returning
// nil when any segment is absent or not an object.
func lookupPath(doc map[string]any, path string) any {
	current := any(doc)
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}
