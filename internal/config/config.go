// Package config loads and validates the YAML configuration monitord
// starts from: platform plugin configs plus the probe/rule descriptors
// to schedule.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"monitord/internal/platform"
	"monitord/internal/probe"
	"monitord/internal/security"
)

// File is the top-level YAML document shape.
type File struct {
	NATSURL     string           `yaml:"nats_url"`
	PostgresDSN string           `yaml:"postgres_dsn"`
	AdminAddr   string           `yaml:"admin_addr"`
	Platforms   []PlatformConfig `yaml:"platforms"`
	Probes      []ProbeConfig    `yaml:"probes"`
	Webhooks    []string         `yaml:"webhook_allowlist"`
	Channels    ChannelConfig    `yaml:"channels"`
}

// ChannelConfig selects the delivery channels to register besides the
// always-on log channel.
type ChannelConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	NATSSubject string `yaml:"nats_subject"`
}

type PlatformConfig struct {
	Platform string         `yaml:"platform"`
	Enabled  *bool          `yaml:"enabled"`
	Config   map[string]any `yaml:"config"`
}

type ProbeConfig struct {
	ID       string         `yaml:"id"`
	Platform string         `yaml:"platform"`
	Type     string         `yaml:"type"`
	Enabled  *bool          `yaml:"enabled"`
	Interval string         `yaml:"interval"`
	Timeout  string         `yaml:"timeout"`
	Config   map[string]any `yaml:"config"`
	Rules    []RuleConfig   `yaml:"rules"`
}

type RuleConfig struct {
	ID              string   `yaml:"id"`
	Kind            string   `yaml:"kind"`
	Fact            string   `yaml:"fact"`
	Operator        string   `yaml:"operator"`
	Threshold       *float64 `yaml:"threshold"`
	Severity        string   `yaml:"severity"`
	Title           string   `yaml:"title"`
	MessageTemplate string   `yaml:"message_template"`
	DedupTTL        string   `yaml:"dedup_ttl"`
	BaselineFact    string   `yaml:"baseline_fact"`
	ZWarn           float64  `yaml:"z_warn"`
	ZCrit           float64  `yaml:"z_crit"`
	MinSamples      int      `yaml:"min_samples"`
}

// Load reads and parses path, returning the raw File. Unknown fields are
// rejected at load time; only the platform/probe config bags accept
// arbitrary keys. Bounds validation happens separately in ValidateProbe,
// which ToProbeDescriptors runs on each probe.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// ToPlatformConfigs adapts the YAML platform list to platform.Config.
func (f File) ToPlatformConfigs() []platform.Config {
	out := make([]platform.Config, 0, len(f.Platforms))
	for _, p := range f.Platforms {
		out = append(out, platform.Config{Platform: p.Platform, Enabled: boolDefault(p.Enabled, true), Config: p.Config})
	}
	return out
}

// ToProbeDescriptors resolves every configured probe to a probe.Descriptor,
// running ValidateProbe on each and returning the first validation
// failure it encounters alongside the probe id.
func (f File) ToProbeDescriptors(limits security.Limits) ([]probe.Descriptor, error) {
	out := make([]probe.Descriptor, 0, len(f.Probes))
	for _, p := range f.Probes {
		d, err := p.toDescriptor()
		if err != nil {
			return nil, fmt.Errorf("probe %q: %w", p.ID, err)
		}
		if err := ValidateProbe(d, limits); err != nil {
			return nil, fmt.Errorf("probe %q: %w", p.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (p ProbeConfig) toDescriptor() (probe.Descriptor, error) {
	interval, err := parseDurationOrDefault(p.Interval, time.Minute)
	if err != nil {
		return probe.Descriptor{}, fmt.Errorf("interval: %w", err)
	}
	timeout, err := parseDurationOrDefault(p.Timeout, probe.DefaultTimeout)
	if err != nil {
		return probe.Descriptor{}, fmt.Errorf("timeout: %w", err)
	}
	rules := make([]probe.RuleDescriptor, 0, len(p.Rules))
	for _, rc := range p.Rules {
		dedupTTL, err := parseDurationOrDefault(rc.DedupTTL, 0)
		if err != nil {
			return probe.Descriptor{}, fmt.Errorf("rule %q dedup_ttl: %w", rc.ID, err)
		}
		rules = append(rules, probe.RuleDescriptor{
			ID:              rc.ID,
			Kind:            rc.Kind,
			Fact:            rc.Fact,
			Operator:        rc.Operator,
			Threshold:       rc.Threshold,
			Severity:        rc.Severity,
			Title:           rc.Title,
			MessageTemplate: rc.MessageTemplate,
			DedupTTL:        dedupTTL,
			BaselineFact:    rc.BaselineFact,
			ZWarn:           rc.ZWarn,
			ZCrit:           rc.ZCrit,
			MinSamples:      rc.MinSamples,
		})
	}
	return probe.Descriptor{
		ID:       p.ID,
		Platform: p.Platform,
		Type:     p.Type,
		Enabled:  boolDefault(p.Enabled, true),
		Interval: interval,
		Timeout:  timeout,
		Config:   p.Config,
		Rules:    rules,
	}, nil
}

// ValidateProbe checks a resolved descriptor against limits.
func ValidateProbe(d probe.Descriptor, limits security.Limits) error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	if d.Interval < limits.MinInterval || d.Interval > limits.MaxInterval {
		return fmt.Errorf("interval %s out of bounds [%s, %s]", d.Interval, limits.MinInterval, limits.MaxInterval)
	}
	if d.Timeout < limits.MinTimeout || d.Timeout > limits.MaxTimeout {
		return fmt.Errorf("timeout %s out of bounds [%s, %s]", d.Timeout, limits.MinTimeout, limits.MaxTimeout)
	}
	seen := map[string]bool{}
	for _, rd := range d.Rules {
		if rd.ID == "" {
			return fmt.Errorf("rule id is required")
		}
		if seen[rd.ID] {
			return fmt.Errorf("duplicate rule id %q", rd.ID)
		}
		seen[rd.ID] = true
		if rd.Fact == "" {
			return fmt.Errorf("rule %q: fact is required", rd.ID)
		}
	}
	return nil
}

func boolDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func parseDurationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
