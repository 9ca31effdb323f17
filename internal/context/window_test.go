package context

import (
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantMin  int
		wantMax  int
	}{
		{
			name:    "empty",
			text:    "",
			wantMin: 0,
			wantMax: 0,
		},
		{
			name:    "single char",
			text:    "a",
			wantMin: 1,
			wantMax: 1,
		},
		{
			name:    "short text",
			text:    "Hello, world!",
			wantMin: 1,
			wantMax: 10,
		},
		{
			name:    "longer text",
			text:    "This is a longer piece of text that should have more tokens.",
			wantMin: 10,
			wantMax: 30,
		},
		{
			name:    "unicode text",
			text:    "你好世界",
			wantMin: 1,
			wantMax: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTokens(tt.text)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("EstimateTokens(%q) = %d, want between %d and %d",
					tt.text, got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestGetModelContextWindow(t *testing.T) {
	tokens, ok := GetModelContextWindow("claude-3-opus")
	if !ok {
		t.Error("expected to find claude-3-opus")
	}
	if tokens != 200000 {
		t.Errorf("tokens = %d, want 200000", tokens)
	}

	_, ok = GetModelContextWindow("unknown-model")
	if ok {
		t.Error("expected to not find unknown-model")
	}
}

func TestTruncator_NoTruncationNeeded(t *testing.T) {
	truncator := NewTruncator(TruncateOldest, 10000)

	messages := []Message{
		{Role: "system", Content: "System prompt", Tokens: 100},
		{Role: "user", Content: "Hello", Tokens: 10},
		{Role: "assistant", Content: "Hi there!", Tokens: 20},
	}

	result, tr := truncator.Truncate(messages)

	if tr.RemovedCount != 0 {
		t.Errorf("RemovedCount = %d, want 0", tr.RemovedCount)
	}
	if len(result) != len(messages) {
		t.Errorf("len(result) = %d, want %d", len(result), len(messages))
	}
}

func TestTruncator_TruncateOldest(t *testing.T) {
	truncator := NewTruncator(TruncateOldest, 200)
	truncator.SetKeepFirst(1)
	truncator.SetKeepLast(1)

	messages := []Message{
		{Role: "system", Content: "System", Tokens: 50},
		{Role: "user", Content: "First", Tokens: 50},
		{Role: "assistant", Content: "Response 1", Tokens: 50},
		{Role: "user", Content: "Second", Tokens: 50},
		{Role: "assistant", Content: "Response 2", Tokens: 50},
		{Role: "user", Content: "Last", Tokens: 50},
	}

	result, tr := truncator.Truncate(messages)

	if tr.RemovedCount == 0 {
		t.Error("expected some messages to be removed")
	}

	// First and last should be preserved
	if result[0].Content != "System" {
		t.Error("system message should be first")
	}
	if result[len(result)-1].Content != "Last" {
		t.Error("last message should be preserved")
	}
}

func TestTruncator_PinnedMessages(t *testing.T) {
	truncator := NewTruncator(TruncateOldest, 100)
	truncator.SetKeepFirst(0)
	truncator.SetKeepLast(0)

	messages := []Message{
		{Role: "user", Content: "First", Tokens: 50},
		{Role: "user", Content: "Pinned", Tokens: 50, Pinned: true},
		{Role: "user", Content: "Third", Tokens: 50},
	}

	result, _ := truncator.Truncate(messages)

	// Pinned message should be preserved
	hasPinned := false
	for _, msg := range result {
		if msg.Content == "Pinned" {
			hasPinned = true
			break
		}
	}

	if !hasPinned {
		t.Error("pinned message should be preserved")
	}
}

func TestTruncator_TruncateMiddle(t *testing.T) {
	truncator := NewTruncator(TruncateMiddle, 150)
	truncator.SetKeepFirst(1)
	truncator.SetKeepLast(1)

	messages := []Message{
		{Role: "system", Content: "System", Tokens: 50},
		{Role: "user", Content: "Middle 1", Tokens: 50},
		{Role: "assistant", Content: "Middle 2", Tokens: 50},
		{Role: "user", Content: "Last", Tokens: 50},
	}

	result, tr := truncator.Truncate(messages)

	if tr.RemovedCount == 0 {
		t.Error("expected some messages to be removed")
	}

	// First and last should be preserved
	if result[0].Content != "System" {
		t.Error("system message should be first")
	}
	if result[len(result)-1].Content != "Last" {
		t.Error("last message should be preserved")
	}
}
