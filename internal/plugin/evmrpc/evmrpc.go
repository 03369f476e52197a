// Package evmrpc implements a Platform over a JSON-RPC Ethereum node
// endpoint: probes poll eth_blockNumber/eth_getBalance/eth_call style
// methods and publish the numeric result as a fact. All calls go
// through a per-endpoint circuit breaker and rate limiter so every
// probe of this platform shares one view of the node's health.
package evmrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"monitord/internal/breaker"
	"monitord/internal/fact"
	"monitord/internal/platform"
	"monitord/internal/probe"
	"monitord/internal/state"
	"monitord/internal/transport"
)

const probeTypeCall = "eth_call"

type Platform struct {
	rpc  transport.RPC
	pool *transport.Pool
}

// BreakerMetrics exposes the per-endpoint circuit state for diagnostics.
func (p *Platform) BreakerMetrics() map[string]breaker.Metrics {
	if p.pool == nil {
		return nil
	}
	return p.pool.Metrics()
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Describe() platform.Descriptor {
	return platform.Descriptor{
		ID:                  "evmrpc",
		DisplayName:         "Ethereum JSON-RPC",
		Version:             "1.0.0",
		SupportedProbeTypes: map[string]struct{}{probeTypeCall: {}},
	}
}

func (p *Platform) Initialize(ctx context.Context, config map[string]any) error {
	endpoint, _ := config["endpoint"].(string)
	if endpoint == "" {
		return fmt.Errorf("evmrpc: config.endpoint is required")
	}
	timeout := 10 * time.Second
	if raw, ok := config["timeout"].(string); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("evmrpc: config.timeout: %w", err)
		}
		timeout = d
	}
	// Circuit state is scoped to the RPC URL: every probe of this
	// platform shares one guard, so the breaker sees the node's real
	// health.
	pool := transport.NewPool(guardConfig(config))
	p.rpc = &transport.Resilient{
		Inner: &transport.HTTP{Endpoint: endpoint, Timeout: timeout},
		Guard: pool.Guard(endpoint),
	}
	p.pool = pool
	return nil
}

func guardConfig(config map[string]any) transport.GuardConfig {
	cfg := transport.GuardConfig{}
	if v, ok := asInt(config["rate_limit"]); ok {
		cfg.MaxRequests = v
	}
	if raw, ok := config["rate_window"].(string); ok && raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.Window = d
		}
	}
	if v, ok := asInt(config["failure_threshold"]); ok {
		cfg.FailureThreshold = v
	}
	if raw, ok := config["reset_timeout"].(string); ok && raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.ResetTimeout = d
		}
	}
	return cfg
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func (p *Platform) CreateProbe(probeType string, descriptor probe.Descriptor) (probe.Probe, error) {
	if probeType != probeTypeCall {
		return nil, fmt.Errorf("evmrpc: unsupported probe type %q", probeType)
	}
	method, _ := descriptor.Config["method"].(string)
	if method == "" {
		method = "eth_blockNumber"
	}
	var params []any
	if raw, ok := descriptor.Config["params"].([]any); ok {
		params = raw
	}
	factKey, _ := descriptor.Config["fact"].(string)
	if factKey == "" {
		factKey = "evm.result"
	}
	return &probeImpl{rpc: p.rpc, method: method, params: params, factKey: factKey}, nil
}

func (p *Platform) Destroy(ctx context.Context) error { return nil }

func (p *Platform) HealthCheck(ctx context.Context) bool {
	if p.rpc == nil {
		return false
	}
	_, err := p.rpc.Call(ctx, "eth_blockNumber", []any{})
	return err == nil
}

type probeImpl struct {
	rpc     transport.RPC
	method  string
	params  []any
	factKey string
}

// Collect calls the configured method and publishes the decoded result.
// Call and decode failures become evm.status/evm.error soft facts; a
// breaker-open fast-fail is rethrown so the run is recorded as an error.
func (pr *probeImpl) Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error) {
	bag := fact.Bag{}
	raw, err := pr.rpc.Call(ctx, pr.method, pr.params)
	if err != nil {
		var open *breaker.OpenError
		if errors.As(err, &open) {
			return nil, err
		}
		bag.Set("evm.status", "error")
		bag.Set("evm.error", err.Error())
		return bag, nil
	}
	value, err := decodeHexOrString(string(raw))
	if err != nil {
		bag.Set("evm.status", "error")
		bag.Set("evm.error", err.Error())
		return bag, nil
	}
	bag.Set("evm.status", "ok")
	bag.Set(pr.factKey, value)
	return bag, nil
}

// decodeHexOrString turns a JSON-RPC quoted 0x-prefixed big integer (the
// standard Ethereum numeric result encoding) into a big.Int. A result
// without the 0x prefix is parsed as a base-10 int64; anything else is
// returned as an error.
func decodeHexOrString(raw string) (*big.Int, error) {
	trimmed := strings.Trim(raw, "\"")
	if strings.HasPrefix(trimmed, "0x") {
		v, ok := new(big.Int).SetString(trimmed[2:], 16)
		if !ok {
			return nil, fmt.Errorf("evmrpc: could not parse hex result %q", trimmed)
		}
		return v, nil
	}
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("evmrpc: could not parse result %q", trimmed)
	}
	return big.NewInt(v), nil
}
