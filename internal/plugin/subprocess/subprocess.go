// Package subprocess implements a Platform that shells out to an
// operator-supplied collector binary speaking one JSON-RPC call,
// "collect", over stdin/stdout. It is the escape hatch for upstreams
// with no native client: any executable that can print a JSON object
// becomes a probe.
package subprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"monitord/internal/fact"
	"monitord/internal/platform"
	"monitord/internal/probe"
	"monitord/internal/state"
	"monitord/internal/transport"
)

const probeTypeCollect = "collect"

type Platform struct {
	timeout time.Duration
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Describe() platform.Descriptor {
	return platform.Descriptor{
		ID:                  "subprocess",
		DisplayName:         "Subprocess Collector",
		Version:             "1.0.0",
		SupportedProbeTypes: map[string]struct{}{probeTypeCollect: {}},
	}
}

func (p *Platform) Initialize(ctx context.Context, config map[string]any) error {
	p.timeout = 15 * time.Second
	if raw, ok := config["timeout"].(string); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("subprocess: config.timeout: %w", err)
		}
		p.timeout = d
	}
	return nil
}

func (p *Platform) CreateProbe(probeType string, descriptor probe.Descriptor) (probe.Probe, error) {
	if probeType != probeTypeCollect {
		return nil, fmt.Errorf("subprocess: unsupported probe type %q", probeType)
	}
	command, _ := descriptor.Config["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("subprocess: probe %q: config.command is required", descriptor.ID)
	}
	var args []string
	if raw, ok := descriptor.Config["args"].([]any); ok {
		for _, a := range raw {
			args = append(args, fmt.Sprint(a))
		}
	}
	namespace, _ := descriptor.Config["namespace"].(string)
	if namespace == "" {
		namespace = "proc"
	}
	var params map[string]any
	if raw, ok := descriptor.Config["params"].(map[string]any); ok {
		params = raw
	}
	return &probeImpl{
		rpc:       &transport.Stdio{Command: command, Args: args, Timeout: p.timeout},
		namespace: namespace,
		params:    params,
	}, nil
}

func (p *Platform) Destroy(ctx context.Context) error { return nil }

// HealthCheck is trivially true: the subprocess is spawned fresh per
// call, so there is no long-lived connection to check.
func (p *Platform) HealthCheck(ctx context.Context) bool { return true }

type probeImpl struct {
	rpc       transport.RPC
	namespace string
	params    map[string]any
}

// Collect invokes the binary's "collect" method and flattens the result
// object into facts under the configured namespace. Spawn and decode
// failures become soft facts so a transiently broken collector does not
// fail the run.
func (pr *probeImpl) Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error) {
	bag := fact.Bag{}
	raw, err := pr.rpc.Call(ctx, "collect", pr.params)
	if err != nil {
		bag.Set(pr.namespace+".status", "error")
		bag.Set(pr.namespace+".error", err.Error())
		return bag, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		bag.Set(pr.namespace+".status", "error")
		bag.Set(pr.namespace+".error", "collector result is not a JSON object: "+err.Error())
		return bag, nil
	}
	bag.Set(pr.namespace+".status", "ok")
	for key, value := range doc {
		bag[pr.namespace+"."+key] = fact.From(value)
	}
	return bag, nil
}
