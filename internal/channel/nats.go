package channel

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"monitord/internal/alert"
)

// NATS publishes each alert to a fixed subject, for operators who want
// to fan alerts into their own downstream consumers rather than (or in
// addition to) the log/webhook channels.
type NATS struct {
	conn    *nats.Conn
	subject string
}

func NewNATS(conn *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = "monitord.alerts"
	}
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Send(ctx context.Context, a alert.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}
