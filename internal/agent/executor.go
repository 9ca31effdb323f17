package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentcore-dev/agentcore/internal/observability"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// ExecutionOutcome is the fully-resolved result of dispatching one tool
// call: either the handler ran (possibly after an approval round-trip) or
// the call was rejected/timed out before it ever reached a handler.
type ExecutionOutcome struct {
	ToolCallID string
	ToolName   string
	Result     ToolHandlerResult
}

// Executor dispatches a single parsed tool call by name to its registered
// handler, applying the §4.2 approval gate first when the run is not in
// auto mode.
type Executor struct {
	registry *Registry
	approval *ApprovalGate

	// Metrics is optional; when set, every dispatched call (including
	// rejections/timeouts short-circuited before reaching a handler) is
	// recorded via RecordToolExecution.
	Metrics *observability.Metrics

	// Recorder is optional; when set, every dispatched call is recorded as
	// a tool.start/tool.end (or tool.error) pair on the run's timeline.
	Recorder *observability.EventRecorder
}

// NewExecutor builds an Executor over registry, using gate for the
// approval round-trip. gate may be nil only if every run that uses this
// executor sets autoMode.
func NewExecutor(registry *Registry, gate *ApprovalGate) *Executor {
	return &Executor{registry: registry, approval: gate}
}

// Execute parses call.Arguments as JSON, applies the approval gate (unless
// autoMode), and dispatches to the bound handler. It never returns an
// error itself: all failure modes are reported inside ExecutionOutcome so
// the loop can feed them back to the model as a tool-result message.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall, autoMode bool, rc *RunContext, state *models.AgentRunState) ExecutionOutcome {
	if e.Recorder != nil {
		ctx = observability.AddToolCallID(ctx, call.ID)
		_ = e.Recorder.RecordToolStart(ctx, call.Name, call.Arguments)
	}

	start := time.Now()
	out := e.execute(ctx, call, autoMode, rc, state)
	elapsed := time.Since(start)

	if e.Metrics != nil {
		status := "success"
		if !out.Result.Success {
			status = "error"
		}
		e.Metrics.RecordToolExecution(call.Name, status, elapsed.Seconds())
	}
	if e.Recorder != nil {
		var err error
		if !out.Result.Success {
			err = fmt.Errorf("%s", out.Result.Error)
		}
		_ = e.Recorder.RecordToolEnd(ctx, call.Name, elapsed, out.Result.Result, err)
	}
	return out
}

func (e *Executor) execute(ctx context.Context, call models.ToolCall, autoMode bool, rc *RunContext, state *models.AgentRunState) ExecutionOutcome {
	out := ExecutionOutcome{ToolCallID: call.ID, ToolName: call.Name}

	tool, ok := e.registry.lookup(call.Name)
	if !ok {
		out.Result = ToolHandlerResult{Success: false, Error: fmt.Sprintf("unknown tool %q", call.Name)}
		return out
	}
	if tool.handler == nil {
		out.Result = ToolHandlerResult{Success: false, Error: fmt.Sprintf("tool %q has no bound handler", call.Name)}
		return out
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			out.Result = ToolHandlerResult{Success: false, Error: fmt.Sprintf("invalid arguments JSON: %v", err)}
			return out
		}
	}

	if !autoMode && e.registry.RequiresApproval(call.Name) {
		decision := e.approval.Request(ctx, call.Name, args, rc, state)
		switch decision.Decision {
		case models.ApprovalRejected:
			out.Result = ToolHandlerResult{Success: false, Error: fmt.Sprintf("Tool execution rejected by user: %s", decision.Comment)}
			return out
		case models.ApprovalTimeout:
			out.Result = ToolHandlerResult{Success: false, Error: "Tool execution rejected by user: Approval timeout"}
			return out
		case models.ApprovalApprovedAlways:
			state.AlwaysApprovedTools[call.Name] = true
		}
	}

	out.Result = tool.handler(ctx, args, rc)
	return out
}
