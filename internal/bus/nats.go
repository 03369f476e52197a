// Package bus implements the NATS control-plane subscriber: external
// operators enable, disable, mute, unmute, or force-run a probe by
// publishing to a probe.* subject.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const (
	SubjectEnable  = "probe.enable"
	SubjectDisable = "probe.disable"
	SubjectMute    = "probe.mute"
	SubjectUnmute  = "probe.unmute"
	SubjectRun     = "probe.run"
)

// ControlOp is the payload every probe.* subject carries.
type ControlOp struct {
	ProbeID string `json:"probe_id"`
	Minutes int    `json:"minutes,omitempty"`
}

// Engine is the subset of internal/engine.Engine the subscriber drives.
// Declared locally to avoid bus depending on engine's full surface.
type Engine interface {
	Enable(probeID string) error
	Disable(probeID string) error
	Mute(ctx context.Context, probeID string, minutes int) error
	Unmute(ctx context.Context, probeID string) error
	RunOnce(probeID string) error
}

type Subscriber struct {
	Conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewSubscriber(url string, logger *slog.Logger) (*Subscriber, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{Conn: conn, logger: logger}, nil
}

func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.Conn != nil {
		s.Conn.Drain()
		s.Conn.Close()
	}
}

// Bind registers the five control-plane subjects against eng, logging and
// continuing on a per-message decode or dispatch failure rather than
// ever crashing the subscriber goroutine.
func (s *Subscriber) Bind(ctx context.Context, eng Engine) error {
	bindings := []struct {
		subject string
		handle  func(ControlOp) error
	}{
		{SubjectEnable, func(op ControlOp) error { return eng.Enable(op.ProbeID) }},
		{SubjectDisable, func(op ControlOp) error { return eng.Disable(op.ProbeID) }},
		{SubjectMute, func(op ControlOp) error { return eng.Mute(ctx, op.ProbeID, op.Minutes) }},
		{SubjectUnmute, func(op ControlOp) error { return eng.Unmute(ctx, op.ProbeID) }},
		{SubjectRun, func(op ControlOp) error { return eng.RunOnce(op.ProbeID) }},
	}
	for _, b := range bindings {
		handle := b.handle
		subject := b.subject
		sub, err := s.Conn.Subscribe(subject, func(msg *nats.Msg) {
			var op ControlOp
			if err := json.Unmarshal(msg.Data, &op); err != nil {
				s.logger.Error("control message decode failed", slog.String("subject", subject), slog.String("error", err.Error()))
				return
			}
			if err := handle(op); err != nil {
				s.logger.Error("control operation failed", slog.String("subject", subject), slog.String("probeId", op.ProbeID), slog.String("error", err.Error()))
			}
		})
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}
