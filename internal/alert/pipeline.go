package alert

import (
	"context"
	"log/slog"
	"time"

	"monitord/internal/idutil"
	"monitord/internal/state"
)

const DefaultCooldown = 15 * time.Minute

// Manager enforces the mute -> dedup -> cooldown -> fan-out -> record
// pipeline for each emitted alert. It exclusively owns the ChannelSet
// iteration.
type Manager struct {
	store    state.Store
	channels *ChannelSet
	cooldown time.Duration
	logger   *slog.Logger
}

func NewManager(store state.Store, channels *ChannelSet, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, channels: channels, cooldown: DefaultCooldown, logger: logger}
}

// WithCooldown overrides the default 15 minute cooldown window, mostly
// for tests.
func (m *Manager) WithCooldown(d time.Duration) *Manager {
	m.cooldown = d
	return m
}

// Process runs one alert through the pipeline. probeState is the same
// ProbeState instance the scheduler loaded for this run; mute is read
// from its Probe namespace.
func (m *Manager) Process(ctx context.Context, a Alert, probeState state.ProbeState) {
	if m.isMuted(probeState) {
		m.logger.Debug("alert suppressed: probe muted", slog.String("alertId", a.ID), slog.String("probeId", a.ProbeID))
		return
	}

	sent, err := m.store.IsAlertSent(ctx, a.ID, a.DedupTTL)
	if err != nil {
		m.logger.Error("dedup check failed", slog.String("alertId", a.ID), slog.String("error", err.Error()))
	}
	if sent {
		m.logger.Debug("alert suppressed: already sent", slog.String("alertId", a.ID))
		return
	}

	cooldownKey := idutil.CooldownKey(a.ProbeID, a.RuleID)
	inCooldown, err := m.store.IsInCooldown(ctx, cooldownKey, m.cooldown)
	if err != nil {
		m.logger.Error("cooldown check failed", slog.String("alertId", a.ID), slog.String("error", err.Error()))
	}
	if inCooldown {
		m.logger.Debug("alert suppressed: in cooldown", slog.String("alertId", a.ID), slog.String("key", cooldownKey))
		return
	}

	if m.channels != nil {
		m.channels.Dispatch(ctx, a)
	}

	if err := m.store.RecordAlert(ctx, a.ID, a.ProbeID, a.RuleID); err != nil {
		m.logger.Error("record alert failed", slog.String("alertId", a.ID), slog.String("error", err.Error()))
	}
	if err := m.store.RecordCooldown(ctx, cooldownKey); err != nil {
		m.logger.Error("record cooldown failed", slog.String("alertId", a.ID), slog.String("error", err.Error()))
	}
}

// ProcessAll runs every alert in the supplied order. Each is deduped
// independently, even when they were all produced by one rule's
// Evaluate call returning a slice.
func (m *Manager) ProcessAll(ctx context.Context, alerts []Alert, probeState state.ProbeState) {
	for _, a := range alerts {
		m.Process(ctx, a, probeState)
	}
}

func (m *Manager) isMuted(st state.ProbeState) bool {
	raw, ok := st.Probe["muted_until"]
	if !ok {
		return false
	}
	untilMs, ok := asFloat(raw)
	if !ok {
		return false
	}
	return time.Now().UnixMilli() < int64(untilMs)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
