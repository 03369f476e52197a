package rule

import (
	"fmt"
	"math"
	"sort"

	"monitord/internal/alert"
	"monitord/internal/fact"
	"monitord/internal/idutil"
	"monitord/internal/probe"
)

const defaultRobustZEpsilon = 1e-9

// RobustZ is the statistical-process-control rule kind: the latest
// observation is scored as a median/MAD z-score against a baseline
// sample window. Fact names the latest scalar observation; BaselineFact
// names a second fact the probe publishes alongside it, holding the
// recent samples as a comma-separated list of numbers (e.g. "10,11,12"). Hysteresis mirrors Threshold: one alert per
// ok -> triggered edge.
type RobustZ struct {
	desc probe.RuleDescriptor
}

func NewRobustZ(d probe.RuleDescriptor) *RobustZ {
	return &RobustZ{desc: d}
}

func (r *RobustZ) Evaluate(facts fact.Bag, ctx Context) []alert.Alert {
	latestRaw, ok := facts[r.desc.Fact]
	if !ok {
		return nil
	}
	latest, ok := fact.CoerceNumeric(latestRaw)
	if !ok {
		return nil
	}

	samples, ok := sampleSlice(facts, r.desc.BaselineFact)
	minSamples := r.desc.MinSamples
	if minSamples <= 0 {
		minSamples = 1
	}
	if !ok || len(samples) < minSamples {
		return nil
	}

	median := medianOf(samples)
	mad := madOf(samples, median)

	var score float64
	triggered := false
	severity := ""
	switch {
	case mad == 0:
		if math.Abs(latest-median) > defaultRobustZEpsilon {
			score = math.Inf(1)
			triggered = true
			severity = "high"
		}
	default:
		score = 0.6745 * (latest - median) / mad
		abs := math.Abs(score)
		if abs >= r.desc.ZCrit {
			triggered = true
			severity = "high"
		} else if abs >= r.desc.ZWarn {
			triggered = true
			severity = "medium"
		}
	}

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

	configuredSeverity := alert.Severity(r.desc.Severity)
	if configuredSeverity == "" {
		if severity == "high" {
			configuredSeverity = alert.Critical
		} else {
			configuredSeverity = alert.Warning
		}
	}
	title := r.desc.Title
	if title == "" {
		title = "Anomalous Value Detected"
	}
	valueStr := fmt.Sprint(latest)
	message := r.desc.MessageTemplate
	if message == "" {
		message = fmt.Sprintf("Value %s is a robust z-score outlier (score=%.2f, median=%.2f, mad=%.2f)", valueStr, score, median, mad)
	} else {
		message = alert.RenderTemplate(message, map[string]string{"value": valueStr})
	}

	return []alert.Alert{{
		ID:        idutil.BreachID(ctx.ProbeID, ctx.RuleID),
		ProbeID:   ctx.ProbeID,
		RuleID:    ctx.RuleID,
		Severity:  configuredSeverity,
		Title:     title,
		Message:   message,
		Timestamp: ctx.Timestamp,
		Entities: map[string]string{
			"Value":  valueStr,
			"Median": fmt.Sprint(median),
			"MAD":    fmt.Sprint(mad),
		},
		DedupTTL: r.desc.DedupTTL,
	}}
}

func sampleSlice(facts fact.Bag, baselineFact string) ([]float64, bool) {
	raw, ok := facts[baselineFact]
	if !ok {
		return nil, false
	}
	str := raw.String()
	if str == "" || str == "null" {
		return nil, false
	}
	parts := splitCSV(str)
	samples := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := parseFloat(p)
		if err != nil {
			continue
		}
		samples = append(samples, v)
	}
	return samples, len(samples) > 0
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func parseFloat(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func madOf(values []float64, median float64) float64 {
	if len(values) == 0 {
		return 0
	}
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	return medianOf(dev)
}
