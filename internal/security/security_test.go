package security

import "testing"

func TestHostAllowlistEmptyPermitsAnyHost(t *testing.T) {
	a := HostAllowlist{}
	if !a.AllowsURL("https://anywhere.example/hook") {
		t.Fatalf("expected empty allowlist to permit any host")
	}
}

func TestHostAllowlistRejectsUnlistedHost(t *testing.T) {
	a := HostAllowlist{Hosts: []string{"hooks.example.com"}}
	if a.AllowsURL("https://evil.example/hook") {
		t.Fatalf("expected unlisted host to be rejected")
	}
	if !a.AllowsURL("https://hooks.example.com/hook") {
		t.Fatalf("expected listed host to be allowed")
	}
}

func TestHostAllowlistRejectsUnparsableURL(t *testing.T) {
	a := HostAllowlist{Hosts: []string{"hooks.example.com"}}
	if a.AllowsURL("://not a url") {
		t.Fatalf("expected unparsable URL to be rejected")
	}
}
