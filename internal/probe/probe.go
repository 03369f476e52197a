// Package probe defines the Probe contract and the configuration
// descriptors that resolve to concrete probe/rule instances.
package probe

import (
	"context"
	"time"

	"monitord/internal/fact"
	"monitord/internal/state"
)

// Probe is a scheduled collector producing a bag of facts from one
// logical upstream. A probe is stateless between runs except through the
// Probe namespace of the ProbeState it is handed, which it may read and
// mutate in place.
type Probe interface {
	Collect(ctx context.Context, st state.ProbeState) (fact.Bag, error)
}

// Descriptor is the configured identity of a probe, resolved by the
// factory into a concrete Probe plus its RuleSet.
type Descriptor struct {
	ID       string
	Platform string
	Type     string
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
	Config   map[string]any
	Rules    []RuleDescriptor
}

const DefaultTimeout = 15 * time.Second

// RuleDescriptor is the configured identity of one rule attached to a
// probe.
type RuleDescriptor struct {
	ID              string
	Kind            string
	Fact            string
	Threshold       *float64
	Operator        string
	Severity        string
	Title           string
	MessageTemplate string
	DedupTTL        time.Duration

	// BaselineFact and ZWarn/ZCrit/MinSamples configure the
	// robust_zscore rule kind.
	BaselineFact string
	ZWarn        float64
	ZCrit        float64
	MinSamples   int
}
