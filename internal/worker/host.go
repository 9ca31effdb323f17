package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore-dev/agentcore/internal/agent"
	"github.com/agentcore-dev/agentcore/internal/agent/contextwindow"
	"github.com/agentcore-dev/agentcore/internal/llmclient"
	"github.com/agentcore-dev/agentcore/internal/observability"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// roundTripTimeout is the fixed 5-minute window a worker waits for the UI
// to answer an approvalRequest or askUser round-trip before resolving it
// locally (§4.8, §5).
const roundTripTimeout = 5 * time.Minute

// inboxCapacity bounds how many control messages the Manager may have
// in flight to one worker without blocking on send.
const inboxCapacity = 32

// eventHistorySize bounds the in-memory run/tool event timeline kept per
// worker; old events are evicted once it fills (§4.8: per-session state,
// not persisted across restarts).
const eventHistorySize = 2000

// Host is the Worker Host (C9): one goroutine-backed execution context per
// session, owning its own Registry, Executor, llmclient.Client, Tracker,
// Compactor, Planner, and Agent Loop. No state is shared across Hosts.
type Host struct {
	SessionID string

	mu        sync.Mutex
	registry  *agent.Registry
	client    *llmclient.Client
	tracker   *contextwindow.Tracker
	compactor *agent.Compactor
	planner   *agent.Planner
	loop      *agent.Loop
	state     *models.AgentRunState

	workingDirectory string
	defaultModel     string

	logger *slog.Logger

	inbox  chan MainToWorker
	outbox chan<- WorkerToMain

	tracer   *observability.Tracer
	metrics  *observability.Metrics
	store    *observability.MemoryEventStore
	recorder *observability.EventRecorder

	pendingMu        sync.Mutex
	pendingApprovals map[string]chan models.ApprovalOutcome
	pendingAskUser   map[string]chan string

	runMu   sync.Mutex
	running bool
}

// HostConfig configures a new Host.
type HostConfig struct {
	SessionID        string
	Registry         *agent.Registry
	BaseURL          string
	APIKey           string
	DefaultModel     string
	WorkingDirectory string
	Outbox           chan<- WorkerToMain
	Logger           *slog.Logger
	// Tracer is optional; when nil, runs are not traced. Supply the
	// process-wide tracer built by cmd/agentcore to get per-run spans.
	Tracer *observability.Tracer
	// Metrics is optional; when nil, LLM requests and tool executions are
	// not recorded. Supply the process-wide Metrics built by cmd/agentcore.
	Metrics *observability.Metrics
	// ObsLogger is optional; when set, the Host keeps a bounded run/tool
	// event timeline (observability.EventRecorder) and logs a summary of it
	// through this redacting logger at the end of every run.
	ObsLogger *observability.Logger
}

// NewHost builds a Host and wires its C2-C8 collaborators around a fresh
// AgentIO implementation: the Host itself. cfg.Registry must be a fresh,
// per-session copy with its optional groups already registered but with no
// core handlers bound yet; NewHost binds them here because the handlers
// close over this Host's own state and AgentIO methods.
func NewHost(cfg HostConfig) (*Host, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{
		SessionID:        cfg.SessionID,
		registry:         cfg.Registry,
		workingDirectory: cfg.WorkingDirectory,
		defaultModel:     cfg.DefaultModel,
		logger:           logger.With("session", cfg.SessionID),
		inbox:            make(chan MainToWorker, inboxCapacity),
		outbox:           cfg.Outbox,
		pendingApprovals: make(map[string]chan models.ApprovalOutcome),
		pendingAskUser:   make(map[string]chan string),
		state:            models.NewAgentRunState(cfg.WorkingDirectory),
		tracer:           cfg.Tracer,
		metrics:          cfg.Metrics,
		store:            observability.NewMemoryEventStore(eventHistorySize),
	}
	h.recorder = observability.NewEventRecorder(h.store, cfg.ObsLogger)

	if err := agent.BindDefaultCoreHandlers(h.registry, h, h.state); err != nil {
		return nil, err
	}

	h.client = llmclient.New(cfg.BaseURL, cfg.APIKey, cfg.DefaultModel, logger, llmclient.WithMetrics(cfg.Metrics))
	h.rebuildLoop()
	return h, nil
}

// rebuildLoop reconstructs the Compactor, Planner, and Loop around the
// current client. Called at construction and whenever setConfig swaps the
// client out from under a live session (§9: "per-worker values").
func (h *Host) rebuildLoop() {
	h.tracker = contextwindow.NewTracker()
	h.compactor = agent.NewCompactor(h.client)
	h.planner = agent.NewPlanner(h.client, h.AskUser)
	executor := agent.NewExecutor(h.registry, agent.NewApprovalGate(h))
	executor.Metrics = h.metrics
	executor.Recorder = h.recorder
	h.loop = &agent.Loop{
		Registry:  h.registry,
		Executor:  executor,
		Client:    h.client,
		Tracker:   h.tracker,
		Compactor: h.compactor,
		Planner:   h.planner,
		IO:        h,
		State:     h.state,
		Logger:    h.logger,
		Recorder:  h.recorder,
	}
}

// Inbox returns the channel the Manager sends MainToWorker messages on.
func (h *Host) Inbox() chan<- MainToWorker {
	return h.inbox
}

// IsRunning reports whether a run is currently in flight on this worker.
func (h *Host) IsRunning() bool {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	return h.running
}

// Run is the worker's single dispatch goroutine: it processes control
// messages sequentially but launches each "run" asynchronously so that
// abort/approvalResponse/askUserResponse messages keep flowing while a
// run is suspended on an LLM call, a tool, or a UI round-trip (§4.8, §5).
func (h *Host) Run(ctx context.Context) {
	ctx = observability.AddSessionID(ctx, h.SessionID)
	h.emit(WorkerToMain{Kind: EvtReady, SessionID: h.SessionID})

	for {
		select {
		case <-ctx.Done():
			h.releaseAllPending()
			return
		case msg, ok := <-h.inbox:
			if !ok {
				h.releaseAllPending()
				return
			}
			h.handle(ctx, msg)
		}
	}
}

func (h *Host) handle(ctx context.Context, msg MainToWorker) {
	switch msg.Kind {
	case MsgRun:
		h.handleRun(ctx, msg.Run)
	case MsgAbort:
		h.mu.Lock()
		state := h.state
		h.mu.Unlock()
		if state.AbortSignal != nil {
			state.AbortSignal.Fire()
		}
	case MsgClearState:
		h.mu.Lock()
		h.state.CurrentTodos = nil
		h.state.AlwaysApprovedTools = make(map[string]bool)
		h.mu.Unlock()
	case MsgAskUserResponse:
		if msg.AskUserResponse != nil {
			h.resolveAskUser(msg.AskUserResponse.RequestID, msg.AskUserResponse.Response)
		}
	case MsgApprovalResponse:
		if msg.ApprovalResponse != nil {
			h.resolveApproval(msg.ApprovalResponse.RequestID, msg.ApprovalResponse.Result)
		}
	case MsgSetConfig:
		if msg.SetConfig != nil {
			h.applySetConfig(*msg.SetConfig)
		}
	case MsgSetWorkingDirectory:
		if msg.SetWorkingDirectory != nil {
			h.mu.Lock()
			h.workingDirectory = msg.SetWorkingDirectory.Directory
			h.state.WorkingDirectory = msg.SetWorkingDirectory.Directory
			h.mu.Unlock()
		}
	case MsgToolGroupChanged:
		if msg.ToolGroupChanged != nil {
			if msg.ToolGroupChanged.Enabled {
				h.registry.Enable(msg.ToolGroupChanged.GroupID, false)
			} else {
				h.registry.Disable(msg.ToolGroupChanged.GroupID)
			}
		}
	case MsgCompact:
		if msg.Compact != nil {
			h.handleCompact(ctx, *msg.Compact)
		}
	}
}

func (h *Host) handleRun(ctx context.Context, payload *RunPayload) {
	if payload == nil {
		return
	}
	h.runMu.Lock()
	if h.running {
		h.runMu.Unlock()
		h.emit(WorkerToMain{Kind: EvtError, SessionID: h.SessionID, Error: &ErrorPayload{Error: "session is already running"}})
		return
	}
	h.running = true
	h.runMu.Unlock()

	runID := uuid.NewString()
	ctx = observability.AddRunID(ctx, runID)

	h.mu.Lock()
	loop := h.loop
	workingDirectory := h.workingDirectory
	if payload.WorkingDirectory != "" {
		workingDirectory = payload.WorkingDirectory
	}
	model := h.defaultModel
	if payload.Model != "" {
		model = payload.Model
	}
	h.mu.Unlock()

	go func() {
		defer func() {
			h.runMu.Lock()
			h.running = false
			h.runMu.Unlock()
		}()

		runCtx := ctx
		var span trace.Span
		if h.tracer != nil {
			runCtx, span = h.tracer.Start(ctx, "agent.run")
			h.tracer.SetAttributes(span, "session_id", h.SessionID, "model", model)
			defer span.End()
		}

		result := loop.RunAgent(runCtx, payload.UserMessage, payload.ExistingMessages, agent.RunConfig{
			WorkingDirectory: workingDirectory,
			EnablePlanning:   payload.EnablePlanning,
			ResumeTodos:      payload.ResumeTodos,
			AutoMode:         payload.AutoMode,
			Model:            model,
		})

		if span != nil && !result.Success {
			h.tracer.RecordError(span, fmt.Errorf("%s", result.Error))
		}

		if h.store != nil {
			if events, err := h.store.GetByRunID(runID); err == nil && len(events) > 0 {
				h.logger.Debug("run timeline", "run_id", runID, "timeline", observability.FormatTimeline(observability.BuildTimeline(events)))
			}
		}

		h.emit(WorkerToMain{
			Kind:      EvtComplete,
			SessionID: h.SessionID,
			Complete: &CompletePayload{Result: RunOutcome{
				Success:  result.Success,
				Response: result.Response,
				Error:    result.Error,
				Messages: result.Messages,
			}},
		})
	}()
}

func (h *Host) handleCompact(ctx context.Context, payload CompactPayload) {
	h.mu.Lock()
	compactor := h.compactor
	h.mu.Unlock()

	go func() {
		result := compactor.Compact(ctx, payload.Model, payload.WorkingDirectory, payload.Messages)
		h.emit(WorkerToMain{
			Kind:      EvtCompactResult,
			SessionID: h.SessionID,
			CompactResult: &CompactResultPayload{
				Summary:  result.Summary,
				Messages: result.Messages,
			},
		})
	}()
}

func (h *Host) applySetConfig(cfg SetConfigPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()

	baseURL := cfg.BaseURL
	apiKey := cfg.APIKey
	model := cfg.DefaultModel
	if model != "" {
		h.defaultModel = model
	} else {
		model = h.defaultModel
	}

	h.client = llmclient.New(baseURL, apiKey, model, h.logger, llmclient.WithMetrics(h.metrics))
	h.rebuildLoop()
}

// --- agent.AgentIO ---

// RequestApproval satisfies agent.ApprovalUI by forwarding the request to
// the Manager/UI and registering a local resolver keyed by a fresh request
// id. A background timer resolves the request to a rejection if the UI
// never answers within roundTripTimeout (§4.8 round-trip requests).
func (h *Host) RequestApproval(ctx context.Context, req agent.ApprovalRequest) <-chan models.ApprovalOutcome {
	reqID := uuid.NewString()
	ch := make(chan models.ApprovalOutcome, 1)

	h.pendingMu.Lock()
	h.pendingApprovals[reqID] = ch
	h.pendingMu.Unlock()

	h.emit(WorkerToMain{
		Kind:      EvtApprovalRequest,
		SessionID: h.SessionID,
		ApprovalRequest: &ApprovalRequestPayload{
			RequestID: reqID,
			ToolName:  req.ToolName,
			Args:      req.Args,
			Reason:    req.Reason,
		},
	})

	go h.expireApproval(reqID, ctx)
	return ch
}

func (h *Host) expireApproval(reqID string, ctx context.Context) {
	timer := time.NewTimer(roundTripTimeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		h.resolveApproval(reqID, &models.ApprovalOutcome{Decision: models.ApprovalTimeout, Comment: "Approval timeout"})
	case <-ctx.Done():
		h.resolveApproval(reqID, &models.ApprovalOutcome{Decision: models.ApprovalTimeout, Comment: "Approval timeout"})
	}
}

func (h *Host) resolveApproval(reqID string, result *models.ApprovalOutcome) {
	h.pendingMu.Lock()
	ch, ok := h.pendingApprovals[reqID]
	if ok {
		delete(h.pendingApprovals, reqID)
	}
	h.pendingMu.Unlock()
	if !ok {
		return
	}
	outcome := models.ApprovalOutcome{Decision: models.ApprovalApprovedOnce}
	if result != nil {
		outcome = *result
	}
	select {
	case ch <- outcome:
	default:
	}
}

// SendFileEdit satisfies agent.ApprovalUI.
func (h *Host) SendFileEdit(preview agent.FileEditPreview) {
	h.emit(WorkerToMain{
		Kind:      EvtFileEdit,
		SessionID: h.SessionID,
		FileEdit: &FileEditPayload{
			Path:            preview.Path,
			OriginalContent: preview.OriginalContent,
			NewContent:      preview.NewContent,
			Language:        preview.Language,
		},
	})
}

// Broadcast satisfies agent.AgentIO. The Manager enriches the message with
// SessionID before relaying it to the UI.
func (h *Host) Broadcast(channel string, data any) {
	h.emit(WorkerToMain{
		Kind:      EvtBroadcast,
		SessionID: h.SessionID,
		Broadcast: &BroadcastPayload{Channel: channel, Data: data},
	})
}

// FlashWindows satisfies agent.AgentIO.
func (h *Host) FlashWindows() {
	h.emit(WorkerToMain{Kind: EvtFlashWindows, SessionID: h.SessionID})
}

// ShowTaskWindow satisfies agent.AgentIO.
func (h *Host) ShowTaskWindow() {
	h.emit(WorkerToMain{Kind: EvtShowTaskWindow, SessionID: h.SessionID})
}

// AskUser satisfies agent.AgentIO. On timeout it resolves to an empty
// answer: the core ask_to_user tool carries no enumerated options, so
// there is no "first option" to fall back to (unlike the approval gate's
// well-defined reject default).
func (h *Host) AskUser(ctx context.Context, question string) (string, error) {
	reqID := uuid.NewString()
	ch := make(chan string, 1)

	h.pendingMu.Lock()
	h.pendingAskUser[reqID] = ch
	h.pendingMu.Unlock()

	h.emit(WorkerToMain{
		Kind:      EvtAskUser,
		SessionID: h.SessionID,
		AskUser:   &AskUserPayload{RequestID: reqID, Request: question},
	})

	timer := time.NewTimer(roundTripTimeout)
	defer timer.Stop()

	select {
	case answer := <-ch:
		return answer, nil
	case <-timer.C:
		h.resolveAskUser(reqID, "")
		return "", nil
	case <-ctx.Done():
		h.resolveAskUser(reqID, "")
		return "", ctx.Err()
	}
}

func (h *Host) resolveAskUser(reqID, response string) {
	h.pendingMu.Lock()
	ch, ok := h.pendingAskUser[reqID]
	if ok {
		delete(h.pendingAskUser, reqID)
	}
	h.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- response:
	default:
	}
}

// releaseAllPending resolves every outstanding approval/ask-user request
// with its local default so that no UI modal is left orphaned when the
// worker aborts, errors, or exits (§4.8, invariant 4 in §8).
func (h *Host) releaseAllPending() {
	h.pendingMu.Lock()
	approvals := h.pendingApprovals
	h.pendingApprovals = make(map[string]chan models.ApprovalOutcome)
	asks := h.pendingAskUser
	h.pendingAskUser = make(map[string]chan string)
	h.pendingMu.Unlock()

	for _, ch := range approvals {
		select {
		case ch <- models.ApprovalOutcome{Decision: models.ApprovalRejected, Comment: "worker exited"}:
		default:
		}
	}
	for _, ch := range asks {
		select {
		case ch <- "":
		default:
		}
	}
}

func (h *Host) emit(msg WorkerToMain) {
	if h.outbox == nil {
		return
	}
	h.outbox <- msg
}
