// Package worker implements the Worker Host (C9) and Worker Manager (C10):
// one isolated goroutine-backed execution context per session, each owning
// its own Agent Loop and collaborators, coordinated by a manager that
// enforces the 8-worker cap and fans cross-session config changes out to
// every live worker (§4.8).
package worker

import "github.com/agentcore-dev/agentcore/pkg/models"

// MainToWorkerKind discriminates the Main -> Worker message union (§4.8).
type MainToWorkerKind string

const (
	MsgRun                 MainToWorkerKind = "run"
	MsgAbort               MainToWorkerKind = "abort"
	MsgClearState          MainToWorkerKind = "clearState"
	MsgAskUserResponse     MainToWorkerKind = "askUserResponse"
	MsgApprovalResponse    MainToWorkerKind = "approvalResponse"
	MsgSetConfig           MainToWorkerKind = "setConfig"
	MsgSetWorkingDirectory MainToWorkerKind = "setWorkingDirectory"
	MsgToolGroupChanged    MainToWorkerKind = "toolGroupChanged"
	MsgCompact             MainToWorkerKind = "compact"
)

// RunPayload starts (or resumes) an agent run on a worker.
type RunPayload struct {
	UserMessage      string
	ExistingMessages []models.Message
	WorkingDirectory string
	EnablePlanning   bool
	ResumeTodos      bool
	AutoMode         bool
	Model            string
}

// AskUserResponsePayload answers a pending askUser round-trip.
type AskUserResponsePayload struct {
	RequestID string
	Response  string
}

// ApprovalResponsePayload answers a pending approvalRequest round-trip.
// A nil Result means approved; a non-nil Result carries the rejection
// decision and comment.
type ApprovalResponsePayload struct {
	RequestID string
	Result    *models.ApprovalOutcome
}

// SetConfigPayload changes the LLM endpoint and/or model a worker targets.
// Either field may be empty, meaning "leave unchanged".
type SetConfigPayload struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
}

// SetWorkingDirectoryPayload repoints a worker's filesystem root.
type SetWorkingDirectoryPayload struct {
	Directory string
}

// ToolGroupChangedPayload enables or disables one optional tool group.
type ToolGroupChangedPayload struct {
	GroupID models.ToolGroup
	Enabled bool
}

// CompactPayload asks a worker to summarize messages outside of a run.
type CompactPayload struct {
	Model            string
	WorkingDirectory string
	Messages         []models.Message
}

// MainToWorker is the tagged union of every message the Manager may send
// down to a worker. Exactly one payload field is populated, matching Kind.
type MainToWorker struct {
	Kind                MainToWorkerKind
	Run                 *RunPayload
	AskUserResponse     *AskUserResponsePayload
	ApprovalResponse    *ApprovalResponsePayload
	SetConfig           *SetConfigPayload
	SetWorkingDirectory *SetWorkingDirectoryPayload
	ToolGroupChanged    *ToolGroupChangedPayload
	Compact             *CompactPayload
}

// WorkerToMainKind discriminates the Worker -> Main message union (§4.8).
type WorkerToMainKind string

const (
	EvtReady           WorkerToMainKind = "ready"
	EvtBroadcast       WorkerToMainKind = "broadcast"
	EvtComplete        WorkerToMainKind = "complete"
	EvtError           WorkerToMainKind = "error"
	EvtApprovalRequest WorkerToMainKind = "approvalRequest"
	EvtAskUser         WorkerToMainKind = "askUser"
	EvtFileEdit        WorkerToMainKind = "fileEdit"
	EvtShowTaskWindow  WorkerToMainKind = "showTaskWindow"
	EvtFlashWindows    WorkerToMainKind = "flashWindows"
	EvtCompactResult   WorkerToMainKind = "compactResult"
)

// BroadcastPayload relays a named UI event. The Manager enriches it with a
// SessionID before forwarding to the UI; workers never stamp their own.
type BroadcastPayload struct {
	Channel string
	Data    any
}

// CompletePayload reports a finished run.
type CompletePayload struct {
	Result RunOutcome
}

// RunOutcome is the worker-protocol mirror of agent.RunResult, kept as its
// own type so this package does not need to import internal/agent's
// unexported run internals just to describe a finished run.
type RunOutcome struct {
	Success  bool
	Response string
	Error    string
	Messages []models.Message
}

// ErrorPayload reports a worker-level failure unrelated to a specific run
// (e.g. rejecting a run request, or a crash).
type ErrorPayload struct {
	Error string
}

// ApprovalRequestPayload asks the UI to approve or reject a tool call.
type ApprovalRequestPayload struct {
	RequestID string
	ToolName  string
	Args      map[string]any
	Reason    string
}

// AskUserPayload asks the UI to collect a free-text answer from the user.
type AskUserPayload struct {
	RequestID string
	Request   string
}

// FileEditPayload previews an edit_file call ahead of its approval prompt.
type FileEditPayload struct {
	Path            string
	OriginalContent string
	NewContent      string
	Language        string
}

// CompactResultPayload reports the outcome of an out-of-run compact request.
type CompactResultPayload struct {
	Summary  string
	Messages []models.Message
}

// WorkerToMain is the tagged union of every message a worker may send up to
// the Manager. Exactly one payload field is populated, matching Kind.
type WorkerToMain struct {
	Kind            WorkerToMainKind
	SessionID       string
	Broadcast       *BroadcastPayload
	Complete        *CompletePayload
	Error           *ErrorPayload
	ApprovalRequest *ApprovalRequestPayload
	AskUser         *AskUserPayload
	FileEdit        *FileEditPayload
	CompactResult   *CompactResultPayload
}
