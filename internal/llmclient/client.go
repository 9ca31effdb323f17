// Package llmclient implements the LLM Client (C4): buffered and
// streaming chat-completion requests against an OpenAI-compatible
// endpoint, with exponential-backoff retries, fatal/retryable error
// classification, and cooperative single-in-flight-request cancellation.
package llmclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/agentcore-dev/agentcore/internal/backoff"
	"github.com/agentcore-dev/agentcore/internal/observability"
	"github.com/agentcore-dev/agentcore/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// llmProvider is the fixed provider label reported to Metrics: this client
// only ever targets one OpenAI-compatible endpoint per process.
const llmProvider = "agentcore"

// requestTimeout is the per-attempt wall-clock budget (§5): on expiry the
// connection is aborted and the attempt counts as a retryable failure.
const requestTimeout = 10 * time.Minute

// maxRetries is the number of retry attempts after the initial request
// (§4.3: "Default 3 attempts" of backoff, i.e. up to 4 requests total).
const maxRetries = 3

// retryPolicy produces the fixed 1s/2s/4s delay sequence via
// internal/backoff's exponential formula with jitter disabled.
var retryPolicy = backoff.BackoffPolicy{InitialMs: 1000, MaxMs: 4000, Factor: 2, Jitter: 0}

// Usage reports token accounting for a completion, when the provider
// supplies it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request describes a single chat-completion call. Messages should be the
// raw conversation history; the client applies §4.3 preprocessing (system
// stripping, reasoning-content folding) itself.
type Request struct {
	Model       string
	System      string
	Messages    []models.Message
	Temperature float32
	MaxTokens   int
	Tools       []models.ToolDefinition
	ForceTool   bool // sets tool_choice="required"
}

// Response is the fully assembled result of a buffered Complete call.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
	Usage     *Usage
}

// StreamChunk is one event delivered while consuming Stream's channel.
// Exactly one of Text/ToolCalls/Err is meaningful per chunk; Done is set
// on the terminal chunk (which may also carry the final ToolCalls/Usage).
type StreamChunk struct {
	Text      string
	ToolCalls []models.ToolCall
	Usage     *Usage
	Done      bool
	Err       error
}

// Client is a per-worker LLM client instance (§9: "singleton registries
// and clients... must become per-worker values").
type Client struct {
	mu             sync.Mutex
	oai            *openai.Client
	defaultModel   string
	logger         *slog.Logger
	inFlightCancel context.CancelFunc
	metrics        *observability.Metrics
}

// Option customizes a Client built by New.
type Option func(*Client)

// WithMetrics attaches a Metrics sink: every buffered Complete call records
// its outcome via RecordLLMRequest. Omit to run without metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New constructs a Client targeting baseURL (an OpenAI-compatible
// `/chat/completions` host). An empty baseURL uses the provider default
// from the go-openai SDK.
func New(baseURL, apiKey, defaultModel string, logger *slog.Logger, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		oai:          openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Abort cancels the in-flight request, if any. Per §4.3, this is a
// single-in-flight-request client: a subsequent Complete/Stream call
// establishes a fresh request rather than resuming the aborted one.
func (c *Client) Abort() {
	c.mu.Lock()
	cancel := c.inFlightCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) beginRequest(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	c.inFlightCancel = cancel
	c.mu.Unlock()
	return ctx, func() {
		c.mu.Lock()
		if c.inFlightCancel != nil {
			c.inFlightCancel = nil
		}
		c.mu.Unlock()
		cancel()
	}
}

func (c *Client) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	preprocessed := PreprocessMessages(model, req.Messages)
	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.System, preprocessed),
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
	}
	if req.ForceTool {
		chatReq.ToolChoice = "required"
	}
	return chatReq
}

// Complete issues a buffered (non-streaming) chat-completion request,
// retrying transient failures with the fixed 1s/2s/4s backoff sequence.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.complete(ctx, req)
	if c.metrics != nil {
		model := req.Model
		if model == "" {
			model = c.defaultModel
		}
		status := "success"
		var prompt, completion int
		if err != nil {
			status = "error"
		} else if resp.Usage != nil {
			prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		}
		c.metrics.RecordLLMRequest(llmProvider, model, status, time.Since(start).Seconds(), prompt, completion)
	}
	return resp, err
}

func (c *Client) complete(ctx context.Context, req Request) (*Response, error) {
	callCtx, done := c.beginRequest(ctx)
	defer done()

	chatReq := c.buildRequest(req, false)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoff.SleepWithContext(callCtx, backoff.ComputeBackoff(retryPolicy, attempt)); err != nil {
				return nil, cancelledOr(err)
			}
		}

		attemptCtx, cancelAttempt := context.WithTimeout(callCtx, requestTimeout)
		resp, err := c.oai.CreateChatCompletion(attemptCtx, chatReq)
		timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancelAttempt()

		if err == nil {
			return responseFromOpenAI(resp), nil
		}
		if errors.Is(callCtx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}

		classified := classifyError(err)
		if !timedOut {
			switch classified.(type) {
			case *ContextLengthError, *QuotaExceededError:
				return nil, classified
			}
			if !isRetryable(err) {
				return nil, classified
			}
		}
		lastErr = classified
		c.logger.Warn("llm request failed, retrying", "attempt", attempt+1, "error", lastErr)
	}
	return nil, lastErr
}

// Stream issues a streaming chat-completion request. Per §4.3 there are no
// retries on stream failures: any error terminates the channel.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	callCtx, done := c.beginRequest(ctx)

	chatReq := c.buildRequest(req, true)
	stream, err := c.oai.CreateChatCompletionStream(callCtx, chatReq)
	if err != nil {
		done()
		if errors.Is(callCtx.Err(), context.Canceled) {
			return nil, ErrCancelled
		}
		return nil, classifyError(err)
	}

	out := make(chan StreamChunk)
	go c.pumpStream(callCtx, done, stream, out)
	return out, nil
}

func (c *Client) pumpStream(ctx context.Context, done func(), stream *openai.ChatCompletionStream, out chan<- StreamChunk) {
	defer close(out)
	defer done()
	defer func() { _ = stream.Close() }()

	toolCalls := map[int]*models.ToolCall{}
	var usage *Usage

	for {
		select {
		case <-ctx.Done():
			out <- StreamChunk{Err: ErrCancelled, Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				out <- StreamChunk{Err: ErrCancelled, Done: true}
				return
			}
			if isStreamEOF(err) {
				out <- StreamChunk{ToolCalls: flattenToolCalls(toolCalls), Usage: usage, Done: true}
				return
			}
			out <- StreamChunk{Err: classifyError(err), Done: true}
			return
		}

		if resp.Usage != nil {
			usage = &Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			out <- StreamChunk{Text: delta.Content}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur, ok := toolCalls[idx]
			if !ok {
				cur = &models.ToolCall{}
				toolCalls[idx] = cur
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				cur.Arguments += tc.Function.Arguments
			}
		}

		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls && len(toolCalls) > 0 {
			out <- StreamChunk{ToolCalls: flattenToolCalls(toolCalls), Usage: usage, Done: true}
			return
		}
	}
}

func flattenToolCalls(m map[int]*models.ToolCall) []models.ToolCall {
	if len(m) == 0 {
		return nil
	}
	out := make([]models.ToolCall, 0, len(m))
	for i := 0; i < len(m); i++ {
		if tc, ok := m[i]; ok && tc.ID != "" {
			out = append(out, *tc)
		}
	}
	return out
}

func responseFromOpenAI(resp openai.ChatCompletionResponse) *Response {
	r := &Response{}
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		r.Content = msg.Content
		if len(msg.ToolCalls) > 0 {
			r.ToolCalls = fromOpenAIToolCalls(msg.ToolCalls)
		}
	}
	r.Usage = &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return r
}

func cancelledOr(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return err
}

func isStreamEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
