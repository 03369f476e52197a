package rule

import (
	"testing"

	"monitord/internal/probe"
)

func TestFactoryRejectsUnknownKind(t *testing.T) {
	_, err := Factory(probe.RuleDescriptor{ID: "r", Kind: "regex"})
	if err == nil {
		t.Fatalf("expected error for unknown rule kind")
	}
}

func TestFactoryBuildsEachClosedKind(t *testing.T) {
	kinds := []string{"threshold", "change", "robust_zscore"}
	for _, k := range kinds {
		if _, err := Factory(probe.RuleDescriptor{ID: "r", Kind: k}); err != nil {
			t.Fatalf("expected %s to be buildable, got %v", k, err)
		}
	}
}
