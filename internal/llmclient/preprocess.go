package llmclient

import (
	"regexp"
	"strings"

	"github.com/agentcore-dev/agentcore/pkg/models"
)

var gptOSSModelPattern = regexp.MustCompile(`(?i)gpt-oss-(20b|120b)`)

// PreprocessMessages applies the §4.3 message-preprocessing rules before
// every request: history role=system messages are stripped (the caller
// supplies a fresh system message per request), reasoning content is
// folded into content when content is empty, gpt-oss models get a
// synthetic content string when they emit tool calls with no content, and
// every assistant message is left with a non-null content string.
func PreprocessMessages(model string, history []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleSystem {
			continue
		}

		m := msg.Clone()
		if m.Role == models.RoleAssistant {
			if m.Content == "" && m.ReasoningContent != "" {
				m.Content = m.ReasoningContent
				m.ReasoningContent = ""
			}
			if len(m.ToolCalls) > 0 && m.Content == "" && gptOSSModelPattern.MatchString(model) {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				m.Content = "Calling tools: " + strings.Join(names, ", ")
			}
			// m.Content is already a Go string, never null; the zero value
			// satisfies "non-null content string (possibly empty)".
		}
		out = append(out, m)
	}
	return out
}
