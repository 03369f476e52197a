package rule

import (
	"fmt"

	"monitord/internal/alert"
	"monitord/internal/fact"
	"monitord/internal/idutil"
	"monitord/internal/probe"
)

// Change never alerts on the first observation of a fact; every
// subsequent transition between two distinct values emits exactly one
// alert.
type Change struct {
	desc probe.RuleDescriptor
}

func NewChange(d probe.RuleDescriptor) *Change {
	return &Change{desc: d}
}

func (c *Change) Evaluate(facts fact.Bag, ctx Context) []alert.Alert {
	raw, ok := facts[c.desc.Fact]
	if !ok {
		return nil
	}
	newVal := raw.String()

	prevRaw, hasPrev := ctx.Slot["value"]
	ctx.Slot["value"] = newVal
	if !hasPrev {
		return nil
	}
	oldVal, _ := prevRaw.(string)
	if oldVal == newVal {
		return nil
	}

	severity := alert.Severity(c.desc.Severity)
	if severity == "" {
		severity = alert.Info
	}
	title := c.desc.Title
	if title == "" {
		title = "Value Changed"
	}
	message := c.desc.MessageTemplate
	if message == "" {
		message = fmt.Sprintf("%s changed from %s to %s", c.desc.Fact, oldVal, newVal)
	} else {
		message = alert.RenderTemplate(message, map[string]string{"old": oldVal, "new": newVal})
	}

	return []alert.Alert{{
		ID:        idutil.ChangeID(ctx.ProbeID, ctx.RuleID, oldVal, newVal),
		ProbeID:   ctx.ProbeID,
		RuleID:    ctx.RuleID,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: ctx.Timestamp,
		Entities:  map[string]string{"Old": oldVal, "New": newVal},
		DedupTTL:  c.desc.DedupTTL,
	}}
}
