// Package state implements the StateStore: durable persistence for probe
// state, dedup records, cooldown records, and run history.
package state

import (
	"context"
	"encoding/json"
	"time"
)

// ProbeState is the per-probe persisted continuity record. Rules only
// ever read/write their own slot under Rule[ruleID]; Probe is written
// only by the probe implementation.
type ProbeState struct {
	Probe map[string]any            `json:"probe"`
	Rule  map[string]map[string]any `json:"rule"`
}

func NewProbeState() ProbeState {
	return ProbeState{Probe: map[string]any{}, Rule: map[string]map[string]any{}}
}

// RuleSlot returns the mutable map a rule may read/write, creating it on
// first access.
func (s ProbeState) RuleSlot(ruleID string) map[string]any {
	slot, ok := s.Rule[ruleID]
	if !ok {
		slot = map[string]any{}
		s.Rule[ruleID] = slot
	}
	return slot
}

// RunStatus is the outcome recorded for one probe run.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunRecord is one append-only row of the run_history table.
type RunRecord struct {
	ID           int64
	ProbeID      string
	Status       RunStatus
	DurationMs   int64
	ErrorMessage string
	CreatedAt    time.Time
}

// DedupRecord is one row of the sent_alerts table.
type DedupRecord struct {
	AlertID string
	ProbeID string
	RuleID  string
	SentAt  time.Time
}

// Store is the persistence contract the scheduler and alert pipeline
// share. All operations are synchronous and atomic at the record level;
// LoadProbeState never errors for absence.
type Store interface {
	LoadProbeState(ctx context.Context, probeID string) (ProbeState, error)
	SaveProbeState(ctx context.Context, probeID string, state ProbeState) error

	IsAlertSent(ctx context.Context, alertID string, ttl time.Duration) (bool, error)
	RecordAlert(ctx context.Context, alertID, probeID, ruleID string) error

	IsInCooldown(ctx context.Context, key string, window time.Duration) (bool, error)
	RecordCooldown(ctx context.Context, key string) error

	RecordRun(ctx context.Context, probeID string, status RunStatus, durationMs int64, errorMessage string) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RecentAlerts(ctx context.Context, limit int) ([]DedupRecord, error)

	Close()
}

func marshalState(state ProbeState) (probeJSON, ruleJSON []byte, err error) {
	probeJSON, err = json.Marshal(state.Probe)
	if err != nil {
		return nil, nil, err
	}
	ruleJSON, err = json.Marshal(state.Rule)
	if err != nil {
		return nil, nil, err
	}
	return probeJSON, ruleJSON, nil
}

func unmarshalState(probeJSON, ruleJSON []byte) (ProbeState, error) {
	state := NewProbeState()
	if len(probeJSON) > 0 {
		if err := json.Unmarshal(probeJSON, &state.Probe); err != nil {
			return ProbeState{}, err
		}
	}
	if len(ruleJSON) > 0 {
		if err := json.Unmarshal(ruleJSON, &state.Rule); err != nil {
			return ProbeState{}, err
		}
	}
	if state.Probe == nil {
		state.Probe = map[string]any{}
	}
	if state.Rule == nil {
		state.Rule = map[string]map[string]any{}
	}
	return state, nil
}
