package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_Constants(t *testing.T) {
	tests := []struct {
		constant Role
		expected string
	}{
		{RoleUser, "user"},
		{RoleAssistant, "assistant"},
		{RoleSystem, "system"},
		{RoleTool, "tool"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	original := Message{
		ID:          "msg-123",
		Role:        RoleAssistant,
		Content:     "Hello!",
		Attachments: []Attachment{{Type: "image", URL: "http://example.com/img.png"}},
		ToolCalls:   []ToolCall{{ID: "tc-1", Name: "search", Arguments: `{"q":"test"}`}},
		CreatedAt:   now,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if decoded.ID != original.ID {
		t.Errorf("ID = %q, want %q", decoded.ID, original.ID)
	}
	if len(decoded.Attachments) != 1 {
		t.Errorf("Attachments length = %d, want 1", len(decoded.Attachments))
	}
	if len(decoded.ToolCalls) != 1 {
		t.Errorf("ToolCalls length = %d, want 1", len(decoded.ToolCalls))
	}
	if decoded.ToolCalls[0].Arguments != `{"q":"test"}` {
		t.Errorf("Arguments = %q, want raw JSON text preserved", decoded.ToolCalls[0].Arguments)
	}
}

func TestMessage_Clone_DoesNotAliasSlices(t *testing.T) {
	original := Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "tc-1", Name: "echo", Arguments: "{}"}},
	}

	clone := original.Clone()
	clone.ToolCalls[0].Name = "mutated"

	if original.ToolCalls[0].Name != "echo" {
		t.Errorf("mutating clone's ToolCalls leaked into original: %q", original.ToolCalls[0].Name)
	}
}

func TestCloneMessages_IndependentCopies(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello", ToolCalls: []ToolCall{{ID: "tc-1", Name: "x"}}},
	}

	clones := CloneMessages(msgs)
	clones[1].ToolCalls[0].Name = "changed"

	if msgs[1].ToolCalls[0].Name != "x" {
		t.Errorf("CloneMessages aliased tool calls across the slice")
	}
}

func TestToolCall_Struct(t *testing.T) {
	tc := ToolCall{
		ID:        "tc-123",
		Name:      "web_search",
		Arguments: `{"query": "test query"}`,
	}

	if tc.ID != "tc-123" {
		t.Errorf("ID = %q, want %q", tc.ID, "tc-123")
	}
	if tc.Name != "web_search" {
		t.Errorf("Name = %q, want %q", tc.Name, "web_search")
	}
}

func TestMessage_ToolRolePairing(t *testing.T) {
	assistant := Message{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "tc-1", Name: "echo", Arguments: `{"text":"hi"}`}},
	}
	toolResult := Message{
		Role:       RoleTool,
		ToolCallID: "tc-1",
		Content:    "hi",
	}

	if toolResult.ToolCallID != assistant.ToolCalls[0].ID {
		t.Error("tool message's ToolCallID must match an id in the preceding assistant message")
	}
}
