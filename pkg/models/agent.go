package models

import "sync/atomic"

// TodoStatus is the lifecycle state of a TodoItem.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoFailed     TodoStatus = "failed"
)

// TodoItem is one entry of an ordered TODO list produced by the Planner and
// mutated by the write_todos/update_todos tools during a run. No two items
// in a list share an ID. At most one item being in_progress at a time is a
// convention the planner and tools are expected to follow; it is not
// enforced here.
type TodoItem struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TodoStatus `json:"status"`
	Note   string     `json:"note,omitempty"`
}

// CloneTodos deep-copies a TODO list so callers can hand out a snapshot
// without aliasing the run state's live slice.
func CloneTodos(todos []TodoItem) []TodoItem {
	return append([]TodoItem(nil), todos...)
}

// ToolGroup partitions tools into enableable sets. The communication and
// todo groups are always enabled and cannot be disabled.
type ToolGroup string

const (
	GroupCommunication ToolGroup = "communication"
	GroupTodo          ToolGroup = "todo"
	GroupFile          ToolGroup = "file"
	GroupShell         ToolGroup = "shell"
	GroupOffice        ToolGroup = "office"
	GroupBrowser       ToolGroup = "browser"
	GroupVision        ToolGroup = "vision"
)

// CoreGroups returns the groups that are always enabled and whose
// membership cannot be changed by enable/disable.
func CoreGroups() []ToolGroup {
	return []ToolGroup{GroupCommunication, GroupTodo}
}

// IsCoreGroup reports whether g is one of the immutable core groups.
func IsCoreGroup(g ToolGroup) bool {
	return g == GroupCommunication || g == GroupTodo
}

// ToolDefinition is the immutable, catalog-level description of a tool:
// its JSON-Schema parameters, the group it belongs to, and whether
// Supervised Mode requires user approval before it runs.
type ToolDefinition struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Parameters       map[string]any `json:"parameters"` // JSON-Schema object: {type, properties, required}
	GroupID          ToolGroup      `json:"groupId"`
	RequiresApproval bool           `json:"requiresApproval"`
}

// NoApprovalTools is the fixed set of tool names that are never subject to
// the approval gate, regardless of mode.
var NoApprovalTools = map[string]bool{
	"tell_to_user":   true,
	"ask_to_user":    true,
	"final_response": true,
	"write_todos":    true,
	"update_todos":   true,
	"get_todo_list":  true,
}

// ApprovalDecision is the outcome of the approval gate's UI round-trip.
type ApprovalDecision string

const (
	ApprovalApprovedOnce   ApprovalDecision = "approved-once"
	ApprovalApprovedAlways ApprovalDecision = "approved-always"
	ApprovalRejected       ApprovalDecision = "rejected"
	ApprovalTimeout        ApprovalDecision = "timeout"
)

// ApprovalOutcome pairs a decision with the user's rejection comment, if
// any. Rejection and timeout are distinct decisions even though both
// synthesize a failing tool result.
type ApprovalOutcome struct {
	Decision ApprovalDecision
	Comment  string
}

// ContextUsage is a point-in-time estimate of how much of the model's
// context window the current conversation occupies.
type ContextUsage struct {
	CurrentTokens   int     `json:"currentTokens"`
	MaxTokens       int     `json:"maxTokens"`
	UsagePercentage float64 `json:"usagePercentage"`
}

// AgentRunState is the per-session state that survives across runs. Only
// RunID, IsRunning, and AbortSignal are reset at the start of each run;
// CurrentTodos, AlwaysApprovedTools, and WorkingDirectory persist for the
// worker's lifetime.
type AgentRunState struct {
	runID               int64
	IsRunning           bool
	AbortSignal         *AbortSignal
	CurrentTodos        []TodoItem
	AlwaysApprovedTools map[string]bool
	WorkingDirectory    string
}

// NewAgentRunState returns a freshly initialized, not-running state.
func NewAgentRunState(workingDirectory string) *AgentRunState {
	return &AgentRunState{
		AlwaysApprovedTools: make(map[string]bool),
		WorkingDirectory:    workingDirectory,
	}
}

// RunID returns the current monotonic run identifier.
func (s *AgentRunState) RunID() int64 {
	return atomic.LoadInt64(&s.runID)
}

// BeginRun increments RunID, marks the state running, and installs a fresh
// AbortSignal, returning the new run id so the caller can stamp every
// callback fired during the run for staleness detection.
func (s *AgentRunState) BeginRun() (runID int64, abort *AbortSignal) {
	runID = atomic.AddInt64(&s.runID, 1)
	s.IsRunning = true
	s.AbortSignal = NewAbortSignal()
	return runID, s.AbortSignal
}

// EndRun marks the state not-running. It must be called before runAgent
// returns, regardless of outcome.
func (s *AgentRunState) EndRun() {
	s.IsRunning = false
}

// IsStale reports whether a callback stamped with callbackRunID belongs to
// a run that has since been superseded.
func (s *AgentRunState) IsStale(callbackRunID int64) bool {
	return callbackRunID != s.RunID()
}

// AbortSignal is a cooperative, idempotent cancellation flag a run's
// suspension points poll or select on.
type AbortSignal struct {
	ch   chan struct{}
	once atomicBool
}

// NewAbortSignal returns an unfired AbortSignal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{ch: make(chan struct{})}
}

// Fire marks the signal as tripped. Safe to call more than once.
func (s *AbortSignal) Fire() {
	if s.once.set() {
		close(s.ch)
	}
}

// Done returns a channel that is closed once Fire has been called.
func (s *AbortSignal) Done() <-chan struct{} {
	return s.ch
}

// Fired reports whether Fire has already been called.
func (s *AbortSignal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

type atomicBool struct{ v int32 }

func (b *atomicBool) set() bool {
	return atomic.CompareAndSwapInt32(&b.v, 0, 1)
}
