package contextwindow

import (
	"testing"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

func TestTracker_PrefersProviderUsage(t *testing.T) {
	tr := NewTracker()
	tr.Update(&Usage{TotalTokens: 1234}, []models.Message{{Content: "irrelevant for this path"}})
	got := tr.Usage(10000)
	if got.CurrentTokens != 1234 {
		t.Errorf("CurrentTokens = %d, want 1234", got.CurrentTokens)
	}
}

func TestTracker_FallsBackToCharCountEstimate(t *testing.T) {
	tr := NewTracker()
	tr.Update(nil, []models.Message{{Content: "a very long message body here"}})
	got := tr.Usage(10000)
	if got.CurrentTokens <= 0 {
		t.Errorf("CurrentTokens = %d, want > 0 from fallback estimate", got.CurrentTokens)
	}
}

func TestTracker_AutoCompactFiresOncePerCrossing(t *testing.T) {
	tr := NewTracker()
	tr.Update(&Usage{TotalTokens: 8000}, nil)

	if !tr.ShouldTriggerAutoCompact(10000) {
		t.Fatal("expected trigger to fire on first crossing of 70%")
	}
	if tr.ShouldTriggerAutoCompact(10000) {
		t.Error("trigger must not fire again before a Reset")
	}

	tr.Reset()
	tr.Update(&Usage{TotalTokens: 9000}, nil)
	if !tr.ShouldTriggerAutoCompact(10000) {
		t.Error("expected trigger to re-arm after Reset")
	}
}

func TestTracker_NoTriggerBelowThreshold(t *testing.T) {
	tr := NewTracker()
	tr.Update(&Usage{TotalTokens: 1000}, nil)
	if tr.ShouldTriggerAutoCompact(10000) {
		t.Error("trigger should not fire below 70% usage")
	}
}
