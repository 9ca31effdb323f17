package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentcore-dev/agentcore/internal/agent/contextwindow"
	ctxwin "github.com/agentcore-dev/agentcore/internal/context"
	"github.com/agentcore-dev/agentcore/internal/llmclient"
	"github.com/agentcore-dev/agentcore/internal/observability"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// maxNoToolCallRetries bounds consecutive assistant responses that carry
// no tool call before the loop gives up and finalizes (§4.6 step 6).
const maxNoToolCallRetries = 3

// maxStrikeFailures is the shared three-strike budget for consecutive
// JSON-parse and schema-validation failures (§4.6 steps 8b/8c).
const maxStrikeFailures = 3

// maxFinalResponseFailures bounds how many times final_response itself is
// allowed to fail before the loop synthesizes a fallback completion
// (§4.6 step 8g).
const maxFinalResponseFailures = 3

// softIterationLimit is the soft warning threshold, not a hard cap
// (§4.6 step 10).
const softIterationLimit = 50

// Loop implements the Agent Loop (C8), the heart of the system: one
// instance per worker/session, wired to its own Registry, Executor,
// llmclient.Client, Tracker, Compactor, and Planner.
type Loop struct {
	Registry  *Registry
	Executor  *Executor
	Client    *llmclient.Client
	Tracker   *contextwindow.Tracker
	Compactor *Compactor
	Planner   *Planner
	IO        AgentIO
	State     *models.AgentRunState
	Logger    *slog.Logger

	// Recorder is optional; when set, each run and every tool call inside
	// it is appended to the run's event timeline for later inspection.
	Recorder *observability.EventRecorder
}

// RunConfig is the enumerated set of per-run options (§4.6).
type RunConfig struct {
	WorkingDirectory string
	EnablePlanning   bool
	ResumeTodos      bool
	AutoMode         bool
	Model            string
}

// RunResult is what RunAgent returns to its caller (the Worker Host).
type RunResult struct {
	Success  bool
	Response string
	Error    string
	Messages []models.Message
}

// RunAgent drives one full plan-then-loop invocation to completion.
func (l *Loop) RunAgent(ctx context.Context, userMessage string, existingHistory []models.Message, cfg RunConfig) (result RunResult) {
	if l.Logger == nil {
		l.Logger = slog.Default()
	}

	if l.Recorder != nil {
		start := time.Now()
		_ = l.Recorder.RecordRunStart(ctx, observability.GetRunID(ctx), map[string]interface{}{"model": cfg.Model, "auto_mode": cfg.AutoMode})
		defer func() {
			var err error
			if !result.Success {
				err = fmt.Errorf("%s", result.Error)
			}
			_ = l.Recorder.RecordRunEnd(ctx, time.Since(start), err)
		}()
	}

	_, abort := l.State.BeginRun()
	defer l.State.EndRun()
	if !cfg.ResumeTodos {
		l.State.CurrentTodos = nil
	}
	l.Tracker.Reset()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-abort.Done():
			l.Client.Abort()
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	history := models.CloneMessages(existingHistory)

	if cfg.EnablePlanning && !cfg.ResumeTodos && len(l.State.CurrentTodos) == 0 {
		planResult, err := l.Planner.Plan(runCtx, cfg.Model, userMessage, history)
		if err == nil {
			if planResult.IsDirectResponse {
				userMsg := models.Message{Role: models.RoleUser, Content: userMessage}
				assistantMsg := models.Message{Role: models.RoleAssistant, Content: planResult.DirectResponse}
				l.IO.Broadcast("complete", planResult.DirectResponse)
				withClarifications := append(models.CloneMessages(history), planResult.ClarificationMessages...)
				return RunResult{
					Success:  true,
					Response: planResult.DirectResponse,
					Messages: append(append(withClarifications, userMsg), assistantMsg),
				}
			}
			l.State.CurrentTodos = planResult.Todos
			history = append(history, planResult.ClarificationMessages...)
			l.IO.Broadcast("todoUpdate", models.CloneTodos(l.State.CurrentTodos))
			l.IO.Broadcast("sessionTitle", planResult.Title)
		}
		// Planner failure is a non-fatal fallback: proceed with whatever
		// (possibly empty) TODO list is already on the state.
	}

	baseHistory := append(models.CloneMessages(history), models.Message{Role: models.RoleUser, Content: userMessage})
	var toolLoopMessages []models.Message

	contextCompactRetried := false
	consecutiveStrikes := 0
	noToolCallRetries := 0
	finalResponseFailures := 0
	warnedSoftLimit := false
	hintCallIDs := make(map[string]bool)

	maxTokens := modelContextWindow(cfg.Model)

	for iteration := 1; ; iteration++ {
		if abort.Fired() {
			return l.abortedResult(baseHistory, toolLoopMessages, hintCallIDs)
		}

		systemPrompt := BuildSystemPrompt(l.Registry, cfg.WorkingDirectory)
		envelope := buildCurrentEnvelope(l.State.CurrentTodos, baseHistory, toolLoopMessages, visionEnabled(l.Registry))

		resp, err := l.Client.Complete(runCtx, llmclient.Request{
			Model:     cfg.Model,
			System:    systemPrompt,
			Messages:  []models.Message{{Role: models.RoleUser, Content: envelope}},
			Tools:     l.Registry.ListSchemas(),
			ForceTool: true,
		})

		if err != nil {
			var contextLenErr *llmclient.ContextLengthError
			if errors.As(err, &contextLenErr) && !contextCompactRetried {
				toolLoopMessages = RollbackLastAssistantToolTurn(toolLoopMessages)
				contextCompactRetried = true
				continue
			}
			var quotaErr *llmclient.QuotaExceededError
			if errors.As(err, &quotaErr) {
				return l.gracefulFailure(quotaErr.Error())
			}
			if errors.Is(err, llmclient.ErrCancelled) {
				return l.abortedResult(baseHistory, toolLoopMessages, hintCallIDs)
			}
			return l.gracefulFailure(err.Error())
		}

		assistantMsg := models.Message{Role: models.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		toolLoopMessages = append(toolLoopMessages, assistantMsg)

		if len(resp.ToolCalls) == 0 {
			noToolCallRetries++
			if noToolCallRetries > maxNoToolCallRetries {
				final := resp.Content
				if final == "" {
					final = "Task completed."
				}
				l.IO.Broadcast("complete", final)
				return RunResult{Success: true, Response: final, Messages: l.finalize(baseHistory, toolLoopMessages, hintCallIDs)}
			}
			var nudge string
			if looksLikeMalformedToolCall(resp.Content) {
				nudge = "Your previous response contained a malformed tool call. Use the tool_calls API, never raw text or XML-like tags."
			} else {
				nudge = "You must use tools to make progress. Call final_response when the task is complete."
			}
			toolLoopMessages = append(toolLoopMessages, models.Message{Role: models.RoleUser, Content: nudge})
			continue
		}
		noToolCallRetries = 0

		calls := resp.ToolCalls
		if len(calls) > 1 {
			l.Logger.Warn("assistant emitted multiple tool calls in one turn; truncating to the first", "count", len(calls))
			calls = calls[:1]
			toolLoopMessages[len(toolLoopMessages)-1].ToolCalls = calls
		}
		call := calls[0]

		name := sanitizeToolName(call.Name)
		if name == "" {
			toolLoopMessages = append(toolLoopMessages, toolResultMessage(call.ID, "Error: empty tool name"))
			continue
		}
		call.Name = name

		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				consecutiveStrikes++
				if consecutiveStrikes >= maxStrikeFailures {
					return l.threeStrikeAbort(baseHistory, toolLoopMessages, hintCallIDs)
				}
				toolLoopMessages = append(toolLoopMessages, toolResultMessage(call.ID, parseFailureHint(call.Arguments, err)))
				hintCallIDs[call.ID] = true
				continue
			}
		} else {
			args = map[string]any{}
		}

		if tool, known := l.Registry.lookup(name); known {
			if err := ValidateArguments(tool.def.Parameters, args); err != nil {
				consecutiveStrikes++
				if consecutiveStrikes >= maxStrikeFailures {
					return l.threeStrikeAbort(baseHistory, toolLoopMessages, hintCallIDs)
				}
				toolLoopMessages = append(toolLoopMessages, toolResultMessage(call.ID, schemaFailureHint(err)))
				hintCallIDs[call.ID] = true
				continue
			}
		}
		consecutiveStrikes = 0

		rc := &RunContext{
			WorkingDirectory: cfg.WorkingDirectory,
			Abort:            abort,
			Emit:             func(event string, data any) { l.IO.Broadcast(event, data) },
		}
		outcome := l.Executor.Execute(runCtx, call, cfg.AutoMode, rc, l.State)

		if abort.Fired() {
			return l.abortedResult(baseHistory, toolLoopMessages, hintCallIDs)
		}

		if call.Name == "final_response" {
			if outcome.Result.Success {
				final := outcome.Result.Result
				if final == "" {
					final, _ = args["message"].(string)
				}
				l.IO.Broadcast("toolResult", outcome)
				l.IO.Broadcast("complete", final)
				toolLoopMessages = append(toolLoopMessages, toolResultMessage(call.ID, final))
				return RunResult{Success: true, Response: final, Messages: l.finalize(baseHistory, toolLoopMessages, hintCallIDs)}
			}
			finalResponseFailures++
			if finalResponseFailures >= maxFinalResponseFailures {
				fallback, _ := args["message"].(string)
				if fallback == "" {
					fallback = outcome.Result.Error
				}
				l.IO.Broadcast("complete", fallback)
				return RunResult{Success: true, Response: fallback, Messages: l.finalize(baseHistory, toolLoopMessages, hintCallIDs)}
			}
			toolLoopMessages = append(toolLoopMessages, toolResultMessage(call.ID, fmt.Sprintf("Error: %s", outcome.Result.Error)))
			continue
		}

		var resultText string
		if outcome.Result.Success {
			resultText = outcome.Result.Result
			if resultText == "" {
				resultText = "(no output)"
			}
		} else {
			resultText = fmt.Sprintf("Error: %s", outcome.Result.Error)
		}
		toolLoopMessages = append(toolLoopMessages, toolResultMessage(call.ID, resultText))
		l.IO.Broadcast("toolResult", outcome)

		l.Tracker.Update(trackerUsage(resp.Usage), append(models.CloneMessages(baseHistory), toolLoopMessages...))
		if l.Tracker.ShouldTriggerAutoCompact(maxTokens) {
			fullConversation := append(models.CloneMessages(baseHistory), toolLoopMessages...)
			compResult := l.Compactor.Compact(runCtx, cfg.Model, cfg.WorkingDirectory, fullConversation)
			if compResult.Success {
				baseHistory = compResult.Messages
				toolLoopMessages = nil
				hintCallIDs = make(map[string]bool)
				l.Tracker.Reset()
				l.IO.Broadcast("contextUpdate", l.Tracker.Usage(maxTokens))
			} else {
				l.Logger.Warn("auto-compaction failed", "reason", compResult.Reason)
			}
		}

		if iteration >= softIterationLimit && !warnedSoftLimit {
			toolLoopMessages = append(toolLoopMessages, models.Message{
				Role:    models.RoleUser,
				Content: "You are approaching the iteration limit for this run. Please wrap up and call final_response soon.",
			})
			warnedSoftLimit = true
		}
	}
}

func (l *Loop) abortedResult(baseHistory, toolLoopMessages []models.Message, hintCallIDs map[string]bool) RunResult {
	toolLoopMessages = append(toolLoopMessages, models.Message{Role: models.RoleAssistant, Content: "[ABORTED BY USER]"})
	return RunResult{Success: true, Response: "", Messages: l.finalize(baseHistory, toolLoopMessages, hintCallIDs)}
}

func (l *Loop) threeStrikeAbort(baseHistory, toolLoopMessages []models.Message, hintCallIDs map[string]bool) RunResult {
	toolLoopMessages = append(toolLoopMessages, models.Message{Role: models.RoleAssistant, Content: ThreeStrikeAbortMessage})
	return RunResult{
		Success:  false,
		Response: ThreeStrikeAbortMessage,
		Error:    ThreeStrikeAbortMessage,
		Messages: l.finalize(baseHistory, toolLoopMessages, hintCallIDs),
	}
}

func (l *Loop) gracefulFailure(message string) RunResult {
	l.IO.Broadcast("error", message)
	return RunResult{Success: false, Response: message, Error: message}
}

func (l *Loop) finalize(baseHistory, toolLoopMessages []models.Message, hintCallIDs map[string]bool) []models.Message {
	full := append(models.CloneMessages(baseHistory), toolLoopMessages...)
	full = StripParseFailureHints(full, hintCallIDs)
	return ValidateToolMessages(full)
}

func toolResultMessage(callID, content string) models.Message {
	return models.Message{Role: models.RoleTool, ToolCallID: callID, Content: content}
}

// buildCurrentEnvelope reconstructs the §4.6 structured envelope from the
// base (pre-loop) history plus everything produced inside the loop so
// far, splitting off the final entry as the "current request".
func buildCurrentEnvelope(todos []models.TodoItem, baseHistory, toolLoopMessages []models.Message, visionOn bool) string {
	combined := append(models.CloneMessages(baseHistory), toolLoopMessages...)
	if len(combined) == 0 {
		return BuildEnvelope(todos, nil, models.Message{}, visionOn)
	}
	current := combined[len(combined)-1]
	prior := combined[:len(combined)-1]
	return BuildEnvelope(todos, prior, current, visionOn)
}

func trackerUsage(u *llmclient.Usage) *contextwindow.Usage {
	if u == nil {
		return nil
	}
	return &contextwindow.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// modelContextWindow resolves the usable token budget for model, falling
// back to the teacher's default context window when the model is unknown.
func modelContextWindow(model string) int {
	if tokens, ok := ctxwin.GetModelContextWindow(model); ok {
		return tokens
	}
	return ctxwin.DefaultContextWindow
}
