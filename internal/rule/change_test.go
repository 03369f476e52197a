package rule

import (
	"testing"

	"monitord/internal/fact"
	"monitord/internal/idutil"
	"monitord/internal/probe"
)

func TestChangeRuleSequence(t *testing.T) {
	desc := probe.RuleDescriptor{ID: "r", Kind: "change", Fact: "status"}
	c := NewChange(desc)
	ctx := Context{ProbeID: "p", RuleID: "r", Slot: map[string]any{}}

	sequence := []string{"A", "A", "B", "B", "C", "A"}
	var ids []string
	for _, v := range sequence {
		alerts := c.Evaluate(fact.Bag{"status": fact.StringValue(v)}, ctx)
		for _, a := range alerts {
			ids = append(ids, a.ID)
		}
	}

	want := []string{
		"p:r:" + idutil.Hash8("A", "B"),
		"p:r:" + idutil.Hash8("B", "C"),
		"p:r:" + idutil.Hash8("C", "A"),
	}
	if len(ids) != len(want) {
		t.Fatalf("expected %d alerts, got %d: %v", len(want), len(ids), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("alert %d: got %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestChangeRuleFirstObservationNeverAlerts(t *testing.T) {
	desc := probe.RuleDescriptor{ID: "r", Kind: "change", Fact: "status"}
	c := NewChange(desc)
	ctx := Context{ProbeID: "p", RuleID: "r", Slot: map[string]any{}}

	alerts := c.Evaluate(fact.Bag{"status": fact.StringValue("A")}, ctx)
	if alerts != nil {
		t.Fatalf("expected no alert on first observation, got %v", alerts)
	}
}

func TestChangeRuleIDIsDeterministic(t *testing.T) {
	idA := idutil.ChangeID("p", "r", "A", "B")
	idB := idutil.ChangeID("p", "r", "A", "B")
	if idA != idB {
		t.Fatalf("expected deterministic id across calls, got %s and %s", idA, idB)
	}
}
