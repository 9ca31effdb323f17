// Package contextwindow adapts the teacher's internal/context token
// estimator into the Context Tracker (C5): a per-run running token count
// plus the one-shot-per-crossing 70% auto-compact latch.
package contextwindow

import (
	"sync"

	ctxwin "github.com/agentcore-dev/agentcore/internal/context"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// autoCompactThreshold is the usage fraction that arms a single
// auto-compact trigger (§4.4: "fires once per crossing of 70%").
const autoCompactThreshold = 0.70

// Usage mirrors the token accounting a completion call reports, decoupled
// from internal/llmclient so this package has no import-cycle risk.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Tracker maintains currentTokens for one run, updated after every LLM
// response.
type Tracker struct {
	mu            sync.Mutex
	currentTokens int
	triggered     bool
}

// NewTracker returns a Tracker starting at zero usage.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Update recomputes currentTokens, preferring the provider-reported usage
// and falling back to a character-count estimate over the full message
// set when usage is absent or zero.
func (t *Tracker) Update(usage *Usage, messages []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if usage != nil && usage.TotalTokens > 0 {
		t.currentTokens = usage.TotalTokens
		return
	}

	total := 0
	for _, m := range messages {
		total += ctxwin.EstimateTokens(m.Content)
	}
	t.currentTokens = total
}

// Usage returns a point-in-time {current, max, percent} snapshot against
// the caller-supplied max (the active model's context window size).
func (t *Tracker) Usage(max int) models.ContextUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pct float64
	if max > 0 {
		pct = float64(t.currentTokens) / float64(max) * 100
	}
	return models.ContextUsage{
		CurrentTokens:   t.currentTokens,
		MaxTokens:       max,
		UsagePercentage: pct,
	}
}

// ShouldTriggerAutoCompact reports true the first time usage crosses 70%
// of max since the last Reset, and false on every subsequent call until
// Reset is called again.
func (t *Tracker) ShouldTriggerAutoCompact(max int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if max <= 0 || t.triggered {
		return false
	}
	if float64(t.currentTokens)/float64(max) >= autoCompactThreshold {
		t.triggered = true
		return true
	}
	return false
}

// Reset clears currentTokens and re-arms the auto-compact trigger. Called
// after a successful compaction.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentTokens = 0
	t.triggered = false
}
