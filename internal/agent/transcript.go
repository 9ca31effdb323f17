package agent

import (
	"fmt"
	"strings"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

// ValidateToolMessages enforces the Message invariant documented on
// models.Message: every RoleTool message's ToolCallID must name a
// ToolCall.ID from an earlier RoleAssistant message in the same slice.
// Messages that break the pairing are dropped. Idempotent: running it
// twice on its own output is a no-op.
func ValidateToolMessages(messages []models.Message) []models.Message {
	knownCallIDs := make(map[string]bool)
	out := make([]models.Message, 0, len(messages))

	for _, m := range messages {
		if m.Role == models.RoleTool {
			if !knownCallIDs[m.ToolCallID] {
				continue // orphaned tool result: the assistant call it answers is gone
			}
		}
		if m.Role == models.RoleAssistant {
			for _, tc := range m.ToolCalls {
				knownCallIDs[tc.ID] = true
			}
		}
		out = append(out, m)
	}
	return out
}

// renderTodoChecklist renders todos as checkbox lines for the
// <CURRENT_TASK> envelope section.
func renderTodoChecklist(todos []models.TodoItem) string {
	if len(todos) == 0 {
		return "(no active todos)"
	}
	var b strings.Builder
	for _, t := range todos {
		mark := " "
		if t.Status == models.TodoCompleted {
			mark = "x"
		} else if t.Status == models.TodoInProgress {
			mark = "~"
		} else if t.Status == models.TodoFailed {
			mark = "!"
		}
		fmt.Fprintf(&b, "[%s] %s\n", mark, t.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

// roleTag maps a message's role onto the envelope's flattening tags.
func roleTag(m models.Message) string {
	switch m.Role {
	case models.RoleUser:
		return "USER"
	case models.RoleAssistant:
		return "ASSISTANT"
	case models.RoleTool:
		return "TOOL_RESULT"
	default:
		return strings.ToUpper(string(m.Role))
	}
}

// renderFlattenedHistory flattens messages into tagged lines for the
// <CONVERSATION_HISTORY> envelope section.
func renderFlattenedHistory(messages []models.Message) string {
	if len(messages) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", roleTag(m), m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildEnvelope assembles the structured user-turn envelope rebuilt on
// every loop iteration (§4.6 "Message rebuild strategy"). history is every
// prior message except the one being presented as the current request;
// current is that last message.
func BuildEnvelope(todos []models.TodoItem, history []models.Message, current models.Message, visionEnabled bool) string {
	var b strings.Builder

	b.WriteString("<CURRENT_TASK>\n")
	b.WriteString(renderTodoChecklist(todos))
	b.WriteString("\n</CURRENT_TASK>\n\n")

	b.WriteString("<CONVERSATION_HISTORY>\n")
	b.WriteString(renderFlattenedHistory(history))
	b.WriteString("\n</CONVERSATION_HISTORY>\n\n")

	b.WriteString("<CURRENT_REQUEST>\n")
	fmt.Fprintf(&b, "[%s]: %s", roleTag(current), current.Content)
	b.WriteString("\n</CURRENT_REQUEST>")

	if visionEnabled {
		b.WriteString("\n\nReminder: verify any UI-affecting change with the vision tools before calling final_response.")
	}

	return b.String()
}

// RollbackLastAssistantToolTurn discards the tail of messages back through
// (and including) the last assistant message that carried tool calls,
// along with every tool-result that answered it (§4.6 step 3 / rollback on
// ContextLengthError).
func RollbackLastAssistantToolTurn(messages []models.Message) []models.Message {
	lastAssistantIdx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAssistant && len(messages[i].ToolCalls) > 0 {
			lastAssistantIdx = i
			break
		}
	}
	if lastAssistantIdx == -1 {
		return messages
	}
	return append([]models.Message(nil), messages[:lastAssistantIdx]...)
}

// StripParseFailureHints removes any RoleTool message whose ToolCallID is
// in hintCallIDs, and any RoleAssistant message whose ToolCalls are
// entirely covered by hintCallIDs once its hint results are gone (§4.6
// "Parse-failure stripping on return").
func StripParseFailureHints(messages []models.Message, hintCallIDs map[string]bool) []models.Message {
	if len(hintCallIDs) == 0 {
		return messages
	}

	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleTool && hintCallIDs[m.ToolCallID] {
			continue
		}
		if m.Role == models.RoleAssistant && len(m.ToolCalls) > 0 {
			allHinted := true
			for _, tc := range m.ToolCalls {
				if !hintCallIDs[tc.ID] {
					allHinted = false
					break
				}
			}
			if allHinted {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
