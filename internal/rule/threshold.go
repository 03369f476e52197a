package rule

import (
	"fmt"

	"monitord/internal/alert"
	"monitord/internal/fact"
	"monitord/internal/idutil"
	"monitord/internal/probe"
)

const (
	statusOK        = "ok"
	statusTriggered = "triggered"
)

// Threshold emits exactly one alert on the ok -> triggered edge, clears
// to ok when the condition no longer holds, and stays silent while
// continuously triggered.
type Threshold struct {
	desc probe.RuleDescriptor
}

func NewThreshold(d probe.RuleDescriptor) *Threshold {
	return &Threshold{desc: d}
}

func (t *Threshold) Evaluate(facts fact.Bag, ctx Context) []alert.Alert {
	raw, ok := facts[t.desc.Fact]
	if !ok {
		return nil
	}
	v, ok := fact.CoerceNumeric(raw)
	if !ok {
		return nil
	}

	threshold := 0.0
	if t.desc.Threshold != nil {
		threshold = *t.desc.Threshold
	}
	triggered := compare(v, t.desc.Operator, threshold)

	status, _ := ctx.Slot["status"].(string)
	if status == "" {
		status = statusOK
	}

	if !triggered {
		ctx.Slot["status"] = statusOK
		return nil
	}

	if status == statusTriggered {
		return nil
	}

	ctx.Slot["status"] = statusTriggered

	severity := alert.Severity(t.desc.Severity)
	if severity == "" {
		severity = alert.Warning
	}
	title := t.desc.Title
	if title == "" {
		title = "Threshold Breached"
	}
	valueStr := fmt.Sprint(v)
	thresholdStr := fmt.Sprint(threshold)
	message := t.desc.MessageTemplate
	if message == "" {
		message = fmt.Sprintf("Value %s crossed threshold %s", valueStr, thresholdStr)
	} else {
		message = alert.RenderTemplate(message, map[string]string{"value": valueStr, "threshold": thresholdStr})
	}

	return []alert.Alert{{
		ID:        idutil.BreachID(ctx.ProbeID, ctx.RuleID),
		ProbeID:   ctx.ProbeID,
		RuleID:    ctx.RuleID,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: ctx.Timestamp,
		Entities:  map[string]string{"Value": valueStr, "Threshold": thresholdStr},
		DedupTTL:  t.desc.DedupTTL,
	}}
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	default:
		return false
	}
}
