// Package channel implements the three concrete alert.Channel plugins
// monitord ships: log, webhook, and NATS publish.
package channel

import (
	"context"
	"log/slog"

	"monitord/internal/alert"
)

// Log delivers every alert as a structured slog record. It never fails,
// making it a reasonable default channel when no other is configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Send(ctx context.Context, a alert.Alert) error {
	l.logger.Info("alert",
		slog.String("id", a.ID),
		slog.String("probeId", a.ProbeID),
		slog.String("ruleId", a.RuleID),
		slog.String("severity", string(a.Severity)),
		slog.String("title", a.Title),
		slog.String("message", a.Message),
	)
	return nil
}
