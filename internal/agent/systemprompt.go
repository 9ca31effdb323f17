package agent

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

const planAndExecutePreamble = `You are an autonomous coding agent working from a TODO list. You must accomplish the current task using the tools provided to you; you do not have a way to respond with plain text instead of a tool call. When the task is fully complete, call final_response exactly once with your answer. Never write a tool call as text in your response content: always use the tool_calls mechanism.`

const gitRulesSection = `GIT RULES:
- Never run destructive git commands (reset --hard, push --force, clean -fd) without explicit user approval already granted through the tool itself.
- Prefer small, reviewable commits with clear messages.
- Never commit secrets or credentials.`

const visionVerificationSection = `VISION VERIFICATION RULE:
- After any UI-affecting change, use the vision tools to capture and inspect the result before calling final_response.`

// BuildSystemPrompt assembles the four-piece system prompt (§4.7).
func BuildSystemPrompt(registry *Registry, workingDirectory string) string {
	pieces := []string{
		planAndExecutePreamble,
		registry.SummaryForPlanning(),
		"WORKING DIRECTORY: " + workingDirectory,
	}

	if hasGitRepo(workingDirectory) {
		pieces = append(pieces, gitRulesSection)
	}
	if visionEnabled(registry) {
		pieces = append(pieces, visionVerificationSection)
	}

	return strings.Join(pieces, "\n\n")
}

func hasGitRepo(workingDirectory string) bool {
	if workingDirectory == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(workingDirectory, ".git"))
	return err == nil && info != nil
}

func visionEnabled(registry *Registry) bool {
	for _, g := range registry.EnabledOptionalToolsInfo() {
		if g == models.GroupVision {
			return true
		}
	}
	return false
}
