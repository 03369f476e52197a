package rule

import (
	"strings"
	"testing"

	"monitord/internal/fact"
	"monitord/internal/probe"
)

func TestRobustZTriggersOnOutlier(t *testing.T) {
	desc := probe.RuleDescriptor{
		ID: "r", Kind: "robust_zscore", Fact: "metric.latest", BaselineFact: "metric.samples",
		ZWarn: 3, ZCrit: 5, MinSamples: 5,
	}
	r := NewRobustZ(desc)
	ctx := Context{ProbeID: "p", RuleID: "r", Slot: map[string]any{}}

	samples := []string{"10", "11", "10", "12", "11", "10", "11", "12", "11", "10"}
	facts := fact.Bag{
		"metric.latest":  fact.FloatValue(20),
		"metric.samples": fact.StringValue(strings.Join(samples, ",")),
	}
	alerts := r.Evaluate(facts, ctx)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert on the outlier edge, got %d", len(alerts))
	}

	// staying anomalous should not re-alert (hysteresis)
	alerts = r.Evaluate(facts, ctx)
	if len(alerts) != 0 {
		t.Fatalf("expected hysteresis to suppress repeat, got %d", len(alerts))
	}
}

func TestRobustZInsufficientSamplesYieldsNil(t *testing.T) {
	desc := probe.RuleDescriptor{
		ID: "r", Kind: "robust_zscore", Fact: "metric.latest", BaselineFact: "metric.samples",
		ZWarn: 3, ZCrit: 5, MinSamples: 20,
	}
	r := NewRobustZ(desc)
	ctx := Context{ProbeID: "p", RuleID: "r", Slot: map[string]any{}}

	facts := fact.Bag{
		"metric.latest":  fact.FloatValue(20),
		"metric.samples": fact.StringValue("10,11,12"),
	}
	if alerts := r.Evaluate(facts, ctx); alerts != nil {
		t.Fatalf("expected nil with insufficient samples, got %v", alerts)
	}
}
