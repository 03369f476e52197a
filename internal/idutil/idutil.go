// Package idutil derives stable, deterministic identifiers used to dedup
// alerts across runs and across processes.
package idutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BreachID is the alert id for a threshold rule's ok->triggered edge.
func BreachID(probeID, ruleID string) string {
	return fmt.Sprintf("%s:%s:breach", probeID, ruleID)
}

// ChangeID is the alert id for a change rule transitioning old->new. It
// must be equal across processes given identical inputs, so it is derived
// from the literal transition string, not from wall-clock time or memory
// addresses.
func ChangeID(probeID, ruleID, old, newVal string) string {
	return fmt.Sprintf("%s:%s:%s", probeID, ruleID, Hash8(old, newVal))
}

// Hash8 returns the first 8 hex characters of SHA-256("old->new").
func Hash8(old, newVal string) string {
	sum := sha256.Sum256([]byte(old + "->" + newVal))
	return hex.EncodeToString(sum[:])[:8]
}

// StuckID is the alert id the scheduler's watchdog synthesizes when it
// force-releases a stuck single-flight lock.
func StuckID(probeID string) string {
	return fmt.Sprintf("%s:system:stuck", probeID)
}

// CooldownKey is the key used by the StateStore's cooldown table.
func CooldownKey(probeID, ruleID string) string {
	return fmt.Sprintf("%s:%s", probeID, ruleID)
}
