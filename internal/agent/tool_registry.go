package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

// Tool parameter limits, mirroring the resource-exhaustion guards the
// teacher repo applies at its registry boundary.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// ToolHandlerResult is the normalized shape every handler must return
// (§6: "never throw (all errors as {success:false, error})").
type ToolHandlerResult struct {
	Success  bool
	Result   string
	Error    string
	Metadata map[string]any
}

// RunContext is threaded into every tool handler invocation (§6 tool-
// handler contract): the working directory, the run's abort signal, and
// an event sink for handlers that want to stream intermediate progress.
type RunContext struct {
	WorkingDirectory string
	Abort            *models.AbortSignal
	Emit             func(event string, data any)
}

// ToolHandler executes one tool call's JSON-decoded arguments. Handlers
// must honor ctx/rc.Abort and return promptly; the loop blocks while a
// handler runs (§4.2).
type ToolHandler func(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult

type registeredTool struct {
	def     models.ToolDefinition
	handler ToolHandler
}

// EnableResult is the outcome of Registry.Enable.
type EnableResult string

const (
	EnableOK             EnableResult = "ok"
	EnableAlreadyEnabled EnableResult = "alreadyEnabled"
	EnableUnknownGroup   EnableResult = "unknownGroup"
	EnableNameConflict   EnableResult = "nameConflict"
)

// DisableResult is the outcome of Registry.Disable.
type DisableResult string

const (
	DisableOK            DisableResult = "ok"
	DisableCoreImmutable DisableResult = "coreGroupImmutable"
	DisableUnknownGroup  DisableResult = "unknownGroup"
)

// Registry is the runtime view of registered tool groups and which of
// them are currently enabled (C1 Tool Catalog + C2 Tool Registry). One
// Registry exists per worker/session; it holds no cross-session state.
type Registry struct {
	mu      sync.RWMutex
	groups  map[models.ToolGroup]map[string]*registeredTool
	enabled map[models.ToolGroup]bool
}

// NewRegistry returns a registry with the two core groups registered and
// enabled. Their handlers must be supplied via BindCoreHandlers before the
// loop runs.
func NewRegistry() *Registry {
	r := &Registry{
		groups:  make(map[models.ToolGroup]map[string]*registeredTool),
		enabled: make(map[models.ToolGroup]bool),
	}
	byGroup := map[models.ToolGroup]map[string]*registeredTool{}
	for _, def := range coreTools() {
		if byGroup[def.GroupID] == nil {
			byGroup[def.GroupID] = map[string]*registeredTool{}
		}
		byGroup[def.GroupID][def.Name] = &registeredTool{def: def}
	}
	for g, tools := range byGroup {
		r.groups[g] = tools
		r.enabled[g] = true
	}
	return r
}

// CoreHandlers binds the intrinsic handlers for the six always-enabled
// tools. These are wired by the Agent Loop itself, not by an external
// tool implementation, because they read and mutate run state directly.
type CoreHandlers struct {
	TellToUser    ToolHandler
	AskToUser     ToolHandler
	FinalResponse ToolHandler
	WriteTodos    ToolHandler
	UpdateTodos   ToolHandler
	GetTodoList   ToolHandler
}

// BindCoreHandlers installs the core tool handlers. It must be called
// once per Registry before the first run.
func (r *Registry) BindCoreHandlers(h CoreHandlers) error {
	bindings := map[string]ToolHandler{
		"tell_to_user":   h.TellToUser,
		"ask_to_user":    h.AskToUser,
		"final_response": h.FinalResponse,
		"write_todos":    h.WriteTodos,
		"update_todos":   h.UpdateTodos,
		"get_todo_list":  h.GetTodoList,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, handler := range bindings {
		found := false
		for _, tools := range r.groups {
			if t, ok := tools[name]; ok {
				t.handler = handler
				found = true
			}
		}
		if !found {
			return fmt.Errorf("core handler binding: unknown tool %q", name)
		}
	}
	return nil
}

// RegisterGroup adds an optional tool group's catalog and handlers. The
// group starts disabled. Registering two groups that share a tool name is
// allowed; the conflict is only refused at Enable time.
func (r *Registry) RegisterGroup(group models.ToolGroup, tools []models.ToolDefinition, handlers map[string]ToolHandler) error {
	if models.IsCoreGroup(group) {
		return fmt.Errorf("cannot register additional tools into core group %q", group)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]*registeredTool, len(tools))
	for _, def := range tools {
		def.GroupID = group
		set[def.Name] = &registeredTool{def: def, handler: handlers[def.Name]}
	}
	r.groups[group] = set
	return nil
}

// enabledNames returns every tool name currently enabled, and the group
// that owns each.
func (r *Registry) enabledNames() map[string]models.ToolGroup {
	names := make(map[string]models.ToolGroup)
	for group, enabled := range r.enabled {
		if !enabled {
			continue
		}
		for name := range r.groups[group] {
			names[name] = group
		}
	}
	return names
}

// Enable turns on an optional tool group. persist is accepted for
// interface parity with a host that wants to remember the choice across
// restarts; this package does not itself persist anything (out of scope,
// §1).
func (r *Registry) Enable(group models.ToolGroup, persist bool) EnableResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	tools, known := r.groups[group]
	if !known {
		return EnableUnknownGroup
	}
	if r.enabled[group] {
		return EnableAlreadyEnabled
	}

	existing := r.enabledNames()
	for name := range tools {
		if _, clash := existing[name]; clash {
			return EnableNameConflict
		}
	}

	r.enabled[group] = true
	return EnableOK
}

// Disable turns off an optional tool group. The core groups can never be
// disabled.
func (r *Registry) Disable(group models.ToolGroup) DisableResult {
	if models.IsCoreGroup(group) {
		return DisableCoreImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, known := r.groups[group]; !known {
		return DisableUnknownGroup
	}
	r.enabled[group] = false
	return DisableOK
}

// ListSchemas returns the tool definitions handed to the LLM verbatim:
// every currently-enabled tool, across all groups.
func (r *Registry) ListSchemas() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ToolDefinition
	for group, enabled := range r.enabled {
		if !enabled {
			continue
		}
		for _, t := range r.groups[group] {
			out = append(out, t.def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SummaryForPlanning renders a human-readable digest of enabled tools for
// the Planner's system prompt (§4.5).
func (r *Registry) SummaryForPlanning() string {
	schemas := r.ListSchemas()
	if len(schemas) == 0 {
		return "No tools are currently available."
	}
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range schemas {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	return b.String()
}

// EnabledOptionalToolsInfo lists the optional groups enabled beyond the
// always-on core.
func (r *Registry) EnabledOptionalToolsInfo() []models.ToolGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.ToolGroup
	for group, enabled := range r.enabled {
		if enabled && !models.IsCoreGroup(group) {
			out = append(out, group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// lookup finds an enabled tool's definition and handler by name.
func (r *Registry) lookup(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for group, enabled := range r.enabled {
		if !enabled {
			continue
		}
		if t, ok := r.groups[group][name]; ok {
			return t, true
		}
	}
	return nil, false
}

// RequiresApproval reports whether name is subject to the approval gate:
// it is an enabled tool outside the fixed no-approval set.
func (r *Registry) RequiresApproval(name string) bool {
	if models.NoApprovalTools[name] {
		return false
	}
	t, ok := r.lookup(name)
	if !ok {
		return false
	}
	return t.def.RequiresApproval
}
