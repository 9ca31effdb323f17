package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentcore-dev/agentcore/internal/llmclient"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

func TestCompactor_InsufficientMessages(t *testing.T) {
	c := NewCompactor(llmclient.New("http://unused.invalid", "key", "gpt-4o", nil))
	result := c.Compact(context.Background(), "gpt-4o", "/work", []models.Message{
		{Role: models.RoleUser, Content: "hi"},
	})
	if result.Success {
		t.Fatal("expected failure below the 5-message precondition")
	}
	if result.Reason != "insufficient messages" {
		t.Errorf("Reason = %q, want %q", result.Reason, "insufficient messages")
	}
}

func TestCompactor_SuccessProducesSyntheticMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{
			"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"## Session Context\n### Goal\nBuild the thing."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}
		}`)
	}))
	defer srv.Close()

	history := make([]models.Message, 0, 6)
	for i := 0; i < 6; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	c := NewCompactor(llmclient.New(srv.URL, "key", "gpt-4o", nil))
	result := c.Compact(context.Background(), "gpt-4o", "/work/dir", history)

	if !result.Success {
		t.Fatalf("Compact() failed: %s", result.Reason)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("got %d synthetic messages, want 2", len(result.Messages))
	}
	if result.Messages[0].Role != models.RoleUser || !strings.Contains(result.Messages[0].Content, "[SESSION CONTEXT - Previous conversation was compacted]") {
		t.Errorf("first message malformed: %+v", result.Messages[0])
	}
	if !strings.Contains(result.Messages[0].Content, "Working Directory: /work/dir") {
		t.Errorf("first message missing working directory: %q", result.Messages[0].Content)
	}
	if result.Messages[1].Role != models.RoleAssistant || result.Messages[1].Content != "Understood. I have the session context and will continue from here." {
		t.Errorf("second message malformed: %+v", result.Messages[1])
	}
}

func TestCompactor_StripsSystemMessagesBeforeCountingPrecondition(t *testing.T) {
	c := NewCompactor(llmclient.New("http://unused.invalid", "key", "gpt-4o", nil))
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "sys 1"},
		{Role: models.RoleSystem, Content: "sys 2"},
		{Role: models.RoleUser, Content: "u1"},
		{Role: models.RoleAssistant, Content: "a1"},
	}
	result := c.Compact(context.Background(), "gpt-4o", "/work", messages)
	if result.Success {
		t.Fatal("expected failure: only 2 non-system messages present")
	}
}
