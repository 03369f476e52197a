// Package rule implements the closed set of rule kinds: threshold,
// change, and robust_zscore.
package rule

import (
	"time"

	"monitord/internal/alert"
	"monitord/internal/fact"
	"monitord/internal/probe"
)

// Context is handed to Evaluate: probeId, a mutable reference into the
// run's ProbeState rule slot, and the run timestamp.
type Context struct {
	ProbeID   string
	RuleID    string
	Slot      map[string]any
	Timestamp time.Time
}

// Rule is a pure-ish evaluator over a fact bag and its own private
// persistent slot. Evaluate must be deterministic given the same
// (facts, priorState) and must only write Slot, never any other rule's.
type Rule interface {
	Evaluate(facts fact.Bag, ctx Context) []alert.Alert
}

// Factory resolves a RuleDescriptor to a concrete Rule. The kind set is
// closed; adding a kind means adding a case here.
func Factory(d probe.RuleDescriptor) (Rule, error) {
	switch d.Kind {
	case "threshold":
		return NewThreshold(d), nil
	case "change":
		return NewChange(d), nil
	case "robust_zscore":
		return NewRobustZ(d), nil
	default:
		return nil, &UnknownKindError{Kind: d.Kind}
	}
}

type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return "unknown rule kind: " + e.Kind
}
