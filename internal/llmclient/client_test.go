package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

func TestPreprocessMessages_StripsSystemRole(t *testing.T) {
	in := []models.Message{
		{Role: models.RoleSystem, Content: "old system prompt"},
		{Role: models.RoleUser, Content: "hi"},
	}
	out := PreprocessMessages("gpt-4o", in)
	if len(out) != 1 || out[0].Role != models.RoleUser {
		t.Fatalf("expected system message stripped, got %+v", out)
	}
}

func TestPreprocessMessages_FoldsReasoningIntoContent(t *testing.T) {
	in := []models.Message{
		{Role: models.RoleAssistant, Content: "", ReasoningContent: "thinking out loud"},
	}
	out := PreprocessMessages("gpt-4o", in)
	if out[0].Content != "thinking out loud" {
		t.Errorf("Content = %q, want reasoning folded in", out[0].Content)
	}
	if out[0].ReasoningContent != "" {
		t.Errorf("ReasoningContent should be cleared, got %q", out[0].ReasoningContent)
	}
}

func TestPreprocessMessages_GptOSSSyntheticContent(t *testing.T) {
	in := []models.Message{
		{
			Role:      models.RoleAssistant,
			Content:   "",
			ToolCalls: []models.ToolCall{{ID: "1", Name: "echo"}, {ID: "2", Name: "final_response"}},
		},
	}
	out := PreprocessMessages("gpt-oss-20b", in)
	want := "Calling tools: echo, final_response"
	if out[0].Content != want {
		t.Errorf("Content = %q, want %q", out[0].Content, want)
	}

	// A non-gpt-oss model must not get the synthetic content.
	out2 := PreprocessMessages("gpt-4o", in)
	if out2[0].Content != "" {
		t.Errorf("non gpt-oss model got synthetic content: %q", out2[0].Content)
	}
}

func TestLooksLikeContextLengthError(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"This model's maximum context length is 8192 tokens", true},
		{"request exceeds context length limit", true},
		{"you have exceeded your token limit", true},
		{"too many tokens in this request", true},
		{"invalid api key", false},
	}
	for _, c := range cases {
		if got := looksLikeContextLengthError(c.msg); got != c.want {
			t.Errorf("looksLikeContextLengthError(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, s := range []int{429, 500, 502, 503} {
		if !isRetryableStatus(s) {
			t.Errorf("status %d should be retryable", s)
		}
	}
	for _, s := range []int{400, 401, 403, 404} {
		if isRetryableStatus(s) {
			t.Errorf("status %d should not be retryable", s)
		}
	}
}

func chatCompletionJSON(content string) string {
	return fmt.Sprintf(`{
		"id":"cmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
		"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],
		"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}
	}`, content)
}

func apiErrorJSON(message string) string {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]any{"message": message, "type": "invalid_request_error"},
	})
	return string(data)
}

func TestClient_Complete_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(apiErrorJSON("server overloaded")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(chatCompletionJSON("hello")))
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", "gpt-4o", nil)
	resp, err := client.Complete(context.Background(), Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v, want nil after retries succeed", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server received %d calls, want 3", got)
	}
}

func TestClient_Complete_ContextLengthNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(apiErrorJSON("This model's maximum context length is 8192 tokens")))
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", "gpt-4o", nil)
	_, err := client.Complete(context.Background(), Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})

	var clErr *ContextLengthError
	if !asContextLengthError(err, &clErr) {
		t.Fatalf("Complete() error = %v (%T), want *ContextLengthError", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server received %d calls, want exactly 1 (no retry on context-length error)", got)
	}
}

func TestClient_Complete_QuotaExceededNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(apiErrorJSON("You exceeded your current quota, please check your billing details")))
	}))
	defer srv.Close()

	client := New(srv.URL, "test-key", "gpt-4o", nil)
	_, err := client.Complete(context.Background(), Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})

	var qErr *QuotaExceededError
	if !asQuotaError(err, &qErr) {
		t.Fatalf("Complete() error = %v (%T), want *QuotaExceededError", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server received %d calls, want exactly 1 (no retry on quota error)", got)
	}
}

func TestClient_Complete_NonRetryable4xxFailsImmediately(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(apiErrorJSON("invalid api key")))
	}))
	defer srv.Close()

	client := New(srv.URL, "bad-key", "gpt-4o", nil)
	_, err := client.Complete(context.Background(), Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected an error for 401 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server received %d calls, want exactly 1", got)
	}
}

func TestClient_Abort_CancelsInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release // block until the test cancels
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(chatCompletionJSON("too late")))
	}))
	defer srv.Close()
	defer close(release)

	client := New(srv.URL, "test-key", "gpt-4o", nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Complete(context.Background(), Request{
			Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
		})
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	client.Abort()

	select {
	case err := <-errCh:
		if err != ErrCancelled {
			t.Errorf("Complete() error = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Complete() did not return after Abort()")
	}
}

func asContextLengthError(err error, target **ContextLengthError) bool {
	if e, ok := err.(*ContextLengthError); ok {
		*target = e
		return true
	}
	return false
}

func asQuotaError(err error, target **QuotaExceededError) bool {
	if e, ok := err.(*QuotaExceededError); ok {
		*target = e
		return true
	}
	return false
}
