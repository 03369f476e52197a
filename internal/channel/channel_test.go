package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"monitord/internal/alert"
	"monitord/internal/security"
)

func sampleAlert() alert.Alert {
	return alert.Alert{ID: "p:r:breach", ProbeID: "p", RuleID: "r", Severity: alert.Warning, Title: "t", Message: "m", Timestamp: time.Now()}
}

func TestLogSendNeverFails(t *testing.T) {
	l := NewLog(nil)
	if err := l.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestWebhookSendPostsJSON(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, security.HostAllowlist{})
	if err := w.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotContentType)
	}
}

func TestWebhookSendRejectsDisallowedHost(t *testing.T) {
	w := NewWebhook("https://evil.example/hook", security.HostAllowlist{Hosts: []string{"hooks.example.com"}})
	if err := w.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error for disallowed host")
	}
}

func TestWebhookSendSurfacesNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, security.HostAllowlist{})
	if err := w.Send(context.Background(), sampleAlert()); err == nil {
		t.Fatalf("expected error for 500 status")
	}
}
