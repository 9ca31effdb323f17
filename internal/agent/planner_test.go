package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/agentcore-dev/agentcore/internal/llmclient"
)

func toolCallChatJSON(name, argsJSON string) string {
	return fmt.Sprintf(`{
		"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":%q,"arguments":%q}}]},"finish_reason":"tool_calls"}],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
	}`, name, argsJSON)
}

func noopAskUser(ctx context.Context, question string) (string, error) {
	return "", fmt.Errorf("unexpected ask_to_user call: %s", question)
}

func TestPlanner_DirectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, toolCallChatJSON("respond_directly", `{"response":"2+2 is 4."}`))
	}))
	defer srv.Close()

	p := NewPlanner(llmclient.New(srv.URL, "key", "gpt-4o", nil), noopAskUser)
	result, err := p.Plan(context.Background(), "gpt-4o", "what is 2+2?", nil)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !result.IsDirectResponse || result.DirectResponse != "2+2 is 4." {
		t.Errorf("got %+v, want direct response", result)
	}
}

func TestPlanner_CreatePlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, toolCallChatJSON("create_plan", `{"title":"Add logging","complexity":"medium","todos":[{"id":"1","title":"Add logger"},{"id":"2","title":"Wire it up"}]}`))
	}))
	defer srv.Close()

	p := NewPlanner(llmclient.New(srv.URL, "key", "gpt-4o", nil), noopAskUser)
	result, err := p.Plan(context.Background(), "gpt-4o", "add logging", nil)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if result.IsDirectResponse {
		t.Fatal("expected a plan, not a direct response")
	}
	if result.Title != "Add logging" || result.Complexity != "medium" || len(result.Todos) != 2 {
		t.Errorf("got %+v, unexpected plan shape", result)
	}
}

func TestPlanner_AskToUserThenPlan(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		if n == 1 {
			fmt.Fprint(w, toolCallChatJSON("ask_to_user", `{"question":"Which framework?"}`))
			return
		}
		fmt.Fprint(w, toolCallChatJSON("create_plan", `{"title":"Build API","complexity":"high","todos":[{"id":"1","title":"Scaffold"}]}`))
	}))
	defer srv.Close()

	askUser := func(ctx context.Context, question string) (string, error) {
		if question != "Which framework?" {
			t.Errorf("unexpected question %q", question)
		}
		return "Gin", nil
	}

	p := NewPlanner(llmclient.New(srv.URL, "key", "gpt-4o", nil), askUser)
	result, err := p.Plan(context.Background(), "gpt-4o", "build me an API", nil)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(result.ClarificationMessages) != 2 {
		t.Fatalf("ClarificationMessages = %v, want 2 entries (question + answer)", result.ClarificationMessages)
	}
	if result.ClarificationMessages[1].Content != "Gin" {
		t.Errorf("answer message = %q, want %q", result.ClarificationMessages[1].Content, "Gin")
	}
	if result.Title != "Build API" {
		t.Errorf("Title = %q, want %q", result.Title, "Build API")
	}
}
