package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentcore-dev/agentcore/internal/llmclient"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

// minMessagesToCompact is the §4.4 precondition: fewer messages than this
// and compaction is refused outright.
const minMessagesToCompact = 5

// maxCompactionOutputTokens bounds the summary the model is asked to
// produce.
const maxCompactionOutputTokens = 2000

// perMessageTruncateChars is how much of each message's content is fed to
// the compaction prompt.
const perMessageTruncateChars = 3000

const compactionSystemPrompt = `You are summarizing a coding assistant session so work can continue after this point. Produce a markdown summary using exactly this structure, with every section present even if brief:

## Session Context
### Goal
### Status
### Key Decisions
### Constraints Learned
### Files Modified
### Active Tasks
### Technical Notes
### Next Steps

Write in the same language as the conversation below. Keep the whole summary concise; it will be truncated past 2000 output tokens.`

// CompactionResult is the outcome of a Compactor run.
type CompactionResult struct {
	Success  bool
	Reason   string
	Messages []models.Message // the two synthetic replacement messages, only set on success
}

// Compactor implements C6: a single-shot LLM call that condenses history
// into a fixed-structure markdown summary, replaced by two synthetic
// messages the loop splices back into the conversation.
type Compactor struct {
	client *llmclient.Client
}

// NewCompactor builds a Compactor over client.
func NewCompactor(client *llmclient.Client) *Compactor {
	return &Compactor{client: client}
}

// Compact summarizes messages (expected to be non-system history) and
// returns the two synthetic replacement messages on success.
func (c *Compactor) Compact(ctx context.Context, model, workingDirectory string, messages []models.Message) CompactionResult {
	nonSystem := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != models.RoleSystem {
			nonSystem = append(nonSystem, m)
		}
	}
	if len(nonSystem) < minMessagesToCompact {
		return CompactionResult{Success: false, Reason: "insufficient messages"}
	}

	userPrompt := buildCompactionPrompt(workingDirectory, model, nonSystem)

	resp, err := c.client.Complete(ctx, llmclient.Request{
		Model:     model,
		System:    compactionSystemPrompt,
		Messages:  []models.Message{{Role: models.RoleUser, Content: userPrompt}},
		MaxTokens: maxCompactionOutputTokens,
	})
	if err != nil {
		return CompactionResult{Success: false, Reason: err.Error()}
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return CompactionResult{Success: false, Reason: "empty summary"}
	}

	return CompactionResult{
		Success: true,
		Messages: []models.Message{
			{
				Role: models.RoleUser,
				Content: fmt.Sprintf(
					"[SESSION CONTEXT - Previous conversation was compacted]\n\n%s\n\n---\nWorking Directory: %s",
					summary, workingDirectory,
				),
			},
			{
				Role:    models.RoleAssistant,
				Content: "Understood. I have the session context and will continue from here.",
			},
		},
	}
}

func buildCompactionPrompt(workingDirectory, model string, messages []models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Working Directory: %s\nModel: %s\n\n```\n", workingDirectory, model)
	for _, m := range messages {
		content := m.Content
		if len(content) > perMessageTruncateChars {
			content = content[:perMessageTruncateChars]
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, content)
	}
	b.WriteString("```\n")
	return b.String()
}
