package agent

import (
	"context"
	"testing"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

func noopHandler(ctx context.Context, args map[string]any, rc *RunContext) ToolHandlerResult {
	return ToolHandlerResult{Success: true}
}

func TestNewRegistry_CoreGroupsEnabledByDefault(t *testing.T) {
	r := NewRegistry()
	schemas := r.ListSchemas()
	if len(schemas) != 6 {
		t.Fatalf("ListSchemas() returned %d tools, want 6 core tools", len(schemas))
	}
	names := make(map[string]bool)
	for _, s := range schemas {
		names[s.Name] = true
	}
	for _, want := range []string{"tell_to_user", "ask_to_user", "final_response", "write_todos", "update_todos", "get_todo_list"} {
		if !names[want] {
			t.Errorf("ListSchemas() missing core tool %q", want)
		}
	}
}

func TestRegistry_DisableCoreGroupIsImmutable(t *testing.T) {
	r := NewRegistry()
	if got := r.Disable(models.GroupCommunication); got != DisableCoreImmutable {
		t.Errorf("Disable(communication) = %v, want %v", got, DisableCoreImmutable)
	}
	if got := r.Disable(models.GroupTodo); got != DisableCoreImmutable {
		t.Errorf("Disable(todo) = %v, want %v", got, DisableCoreImmutable)
	}
}

func TestRegistry_EnableUnknownGroup(t *testing.T) {
	r := NewRegistry()
	if got := r.Enable(models.GroupFile, false); got != EnableUnknownGroup {
		t.Errorf("Enable(unregistered file group) = %v, want %v", got, EnableUnknownGroup)
	}
}

func TestRegistry_EnableDisableOptionalGroup(t *testing.T) {
	r := NewRegistry()
	fileTools := []models.ToolDefinition{
		{Name: "read_file", Description: "Read a file.", Parameters: objectSchema(map[string]any{"path": stringProp("")}, "path"), RequiresApproval: false},
	}
	if err := r.RegisterGroup(models.GroupFile, fileTools, map[string]ToolHandler{"read_file": noopHandler}); err != nil {
		t.Fatalf("RegisterGroup() error = %v", err)
	}

	if got := r.Enable(models.GroupFile, false); got != EnableOK {
		t.Fatalf("Enable(file) = %v, want %v", got, EnableOK)
	}
	if got := r.Enable(models.GroupFile, false); got != EnableAlreadyEnabled {
		t.Errorf("second Enable(file) = %v, want %v", got, EnableAlreadyEnabled)
	}

	if _, ok := r.lookup("read_file"); !ok {
		t.Error("read_file should be looked up once its group is enabled")
	}

	if got := r.Disable(models.GroupFile); got != DisableOK {
		t.Errorf("Disable(file) = %v, want %v", got, DisableOK)
	}
	if _, ok := r.lookup("read_file"); ok {
		t.Error("read_file should not resolve once its group is disabled")
	}
}

func TestRegistry_EnableRefusesNameConflict(t *testing.T) {
	r := NewRegistry()
	groupA := []models.ToolDefinition{{Name: "shared_tool", Parameters: objectSchema(nil)}}
	groupB := []models.ToolDefinition{{Name: "shared_tool", Parameters: objectSchema(nil)}}

	if err := r.RegisterGroup(models.GroupFile, groupA, map[string]ToolHandler{"shared_tool": noopHandler}); err != nil {
		t.Fatalf("RegisterGroup(file) error = %v", err)
	}
	if err := r.RegisterGroup(models.GroupShell, groupB, map[string]ToolHandler{"shared_tool": noopHandler}); err != nil {
		t.Fatalf("RegisterGroup(shell) error = %v", err)
	}

	if got := r.Enable(models.GroupFile, false); got != EnableOK {
		t.Fatalf("Enable(file) = %v, want %v", got, EnableOK)
	}
	if got := r.Enable(models.GroupShell, false); got != EnableNameConflict {
		t.Errorf("Enable(shell) = %v, want %v (name collides with enabled file group)", got, EnableNameConflict)
	}
}

func TestRegistry_BindCoreHandlers(t *testing.T) {
	r := NewRegistry()
	h := CoreHandlers{
		TellToUser:    noopHandler,
		AskToUser:     noopHandler,
		FinalResponse: noopHandler,
		WriteTodos:    noopHandler,
		UpdateTodos:   noopHandler,
		GetTodoList:   noopHandler,
	}
	if err := r.BindCoreHandlers(h); err != nil {
		t.Fatalf("BindCoreHandlers() error = %v", err)
	}
	t_, ok := r.lookup("final_response")
	if !ok || t_.handler == nil {
		t.Error("final_response handler should be bound")
	}
}

func TestRegistry_RequiresApproval(t *testing.T) {
	r := NewRegistry()
	shellTools := []models.ToolDefinition{
		{Name: "run_command", Parameters: objectSchema(nil), RequiresApproval: true},
	}
	if err := r.RegisterGroup(models.GroupShell, shellTools, map[string]ToolHandler{"run_command": noopHandler}); err != nil {
		t.Fatalf("RegisterGroup() error = %v", err)
	}
	r.Enable(models.GroupShell, false)

	if r.RequiresApproval("tell_to_user") {
		t.Error("tell_to_user is in the no-approval set and must not require approval")
	}
	if !r.RequiresApproval("run_command") {
		t.Error("run_command declared RequiresApproval:true and should require approval")
	}
	if r.RequiresApproval("nonexistent_tool") {
		t.Error("an unknown tool cannot require approval")
	}
}

func TestRegistry_EnabledOptionalToolsInfo(t *testing.T) {
	r := NewRegistry()
	if got := r.EnabledOptionalToolsInfo(); len(got) != 0 {
		t.Errorf("EnabledOptionalToolsInfo() = %v, want empty before any optional group is enabled", got)
	}
	visionTools := []models.ToolDefinition{{Name: "read_screen", Parameters: objectSchema(nil)}}
	if err := r.RegisterGroup(models.GroupVision, visionTools, map[string]ToolHandler{"read_screen": noopHandler}); err != nil {
		t.Fatalf("RegisterGroup() error = %v", err)
	}
	r.Enable(models.GroupVision, false)
	got := r.EnabledOptionalToolsInfo()
	if len(got) != 1 || got[0] != models.GroupVision {
		t.Errorf("EnabledOptionalToolsInfo() = %v, want [%v]", got, models.GroupVision)
	}
}
