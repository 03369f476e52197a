package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"monitord/internal/alert"
	"monitord/internal/security"
)

// Webhook POSTs a JSON envelope of the alert to a configured URL.
// Destinations are checked against allowlist before every send, since
// the URL can come from operator-supplied config and monitord has no
// other SSRF boundary around it.
type Webhook struct {
	URL       string
	Client    *http.Client
	Allowlist security.HostAllowlist
}

func NewWebhook(url string, allowlist security.HostAllowlist) *Webhook {
	return &Webhook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}, Allowlist: allowlist}
}

func (w *Webhook) Name() string { return "webhook" }

type webhookPayload struct {
	ID       string            `json:"id"`
	ProbeID  string            `json:"probe_id"`
	RuleID   string            `json:"rule_id"`
	Severity string            `json:"severity"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Entities map[string]string `json:"entities,omitempty"`
}

func (w *Webhook) Send(ctx context.Context, a alert.Alert) error {
	if !w.Allowlist.AllowsURL(w.URL) {
		return fmt.Errorf("webhook destination not allowlisted: %s", w.URL)
	}
	body, err := json.Marshal(webhookPayload{
		ID: a.ID, ProbeID: a.ProbeID, RuleID: a.RuleID,
		Severity: string(a.Severity), Title: a.Title, Message: a.Message, Entities: a.Entities,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", w.URL, resp.StatusCode)
	}
	return nil
}
