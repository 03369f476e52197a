// Package security carries monitord's outbound-safety checks: a host
// allowlist for the webhook channel, and the bounds the config loader
// enforces on probe intervals and timeouts.
package security

import "net/url"

// HostAllowlist restricts webhook channel destinations by hostname. An
// empty allowlist permits any host.
type HostAllowlist struct {
	Hosts []string
}

func (a HostAllowlist) AllowsURL(raw string) bool {
	if len(a.Hosts) == 0 {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, h := range a.Hosts {
		if h == parsed.Hostname() {
			return true
		}
	}
	return false
}
