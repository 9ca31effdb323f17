package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

// approvalTimeout is the fixed 5-minute window the UI gets to respond to a
// pending approval prompt (§4.2).
const approvalTimeout = 5 * time.Minute

// previewSettleDelay is the minimum pause between sending an edit_file
// preview and prompting for approval, so the diff is visible first (§4.2:
// "pause briefly (>=1s)").
const previewSettleDelay = 1 * time.Second

// ApprovalRequest is sent to the UI when a tool outside the no-approval
// set needs a human decision.
type ApprovalRequest struct {
	ToolName string
	Args     map[string]any
	Reason   string
}

// FileEditPreview is sent ahead of the approval prompt for edit_file calls
// so the UI can render a diff before the user is asked to approve it.
type FileEditPreview struct {
	Path            string
	OriginalContent string
	NewContent      string
	Language        string
}

// ApprovalUI is the host-provided surface the gate uses to ask a human for
// a decision. A real desktop host implements this by talking to its
// window layer; tests can supply a fake.
type ApprovalUI interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) <-chan models.ApprovalOutcome
	SendFileEdit(preview FileEditPreview)
}

// ApprovalGate implements the §4.2 approval gate. One gate is owned per
// run/worker; AlwaysApprovedTools lives on the AgentRunState so it
// persists across runs within a session.
type ApprovalGate struct {
	ui    ApprovalUI
	sleep func(time.Duration)
}

// NewApprovalGate builds a gate that prompts through ui.
func NewApprovalGate(ui ApprovalUI) *ApprovalGate {
	return &ApprovalGate{ui: ui, sleep: time.Sleep}
}

// Request runs the full §4.2 approval round-trip for one tool call, adding
// edit_file's preview step up front.
func (g *ApprovalGate) Request(ctx context.Context, toolName string, args map[string]any, rc *RunContext, state *models.AgentRunState) models.ApprovalOutcome {
	if state.AlwaysApprovedTools[toolName] {
		return models.ApprovalOutcome{Decision: models.ApprovalApprovedOnce}
	}

	if toolName == "edit_file" {
		if preview, err := buildEditFilePreview(rc.WorkingDirectory, args); err == nil {
			g.ui.SendFileEdit(preview)
			g.sleep(previewSettleDelay)
		}
	}

	ch := g.ui.RequestApproval(ctx, ApprovalRequest{ToolName: toolName, Args: args})

	timer := time.NewTimer(approvalTimeout)
	defer timer.Stop()

	select {
	case outcome := <-ch:
		return outcome
	case <-timer.C:
		return models.ApprovalOutcome{Decision: models.ApprovalTimeout, Comment: "Approval timeout"}
	case <-rc.Abort.Done():
		return models.ApprovalOutcome{Decision: models.ApprovalTimeout, Comment: "Approval timeout"}
	case <-ctx.Done():
		return models.ApprovalOutcome{Decision: models.ApprovalTimeout, Comment: "Approval timeout"}
	}
}

// buildEditFilePreview reads the target file relative to workingDirectory
// and replaces old_string with new_string once, mirroring what the
// edit_file handler itself will do.
func buildEditFilePreview(workingDirectory string, args map[string]any) (FileEditPreview, error) {
	path, _ := args["path"].(string)
	oldString, _ := args["old_string"].(string)
	newString, _ := args["new_string"].(string)
	if path == "" {
		return FileEditPreview{}, fmt.Errorf("edit_file preview: missing path")
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(workingDirectory, path)
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return FileEditPreview{}, err
	}
	original := string(raw)
	updated := strings.Replace(original, oldString, newString, 1)

	return FileEditPreview{
		Path:            path,
		OriginalContent: original,
		NewContent:      updated,
		Language:        languageForPath(path),
	}, nil
}

func languageForPath(path string) string {
	switch filepath.Ext(path) {
	case ".go":
		return "go"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".py":
		return "python"
	case ".json":
		return "json"
	case ".md":
		return "markdown"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "plaintext"
	}
}
