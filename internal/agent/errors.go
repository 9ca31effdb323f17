package agent

import (
	"regexp"
	"strings"
)

// ThreeStrikeAbortMessage is returned verbatim (§4.6 step 8b/8c, seed
// scenario 4) once consecutiveParseFailures or consecutive schema-
// validation failures reaches three.
const ThreeStrikeAbortMessage = "현재 모델이 올바른 JSON tool arguments를 생성하지 못하고 있습니다. 다른 모델로 변경해 주세요."

// rawInputPreviewChars bounds how much of a malformed tool call's raw
// argument text is echoed back in a hint (§4.6 step 8b).
const rawInputPreviewChars = 300

// jsonCorrectionHints are the five required corrections listed back to the
// model whenever its tool-call arguments fail to parse or fail schema
// validation.
var jsonCorrectionHints = []string{
	"Use double quotes for all JSON keys and string values, never single quotes.",
	"Do not add a trailing comma after the last item in an object or array.",
	"Do not include comments; JSON has no comment syntax.",
	"Escape special characters properly (\\n, \\\", \\\\) instead of embedding them raw.",
	"Emit pure JSON only, never XML-like tags or markup.",
}

// malformedToolCallTags are the XML-ish markers that indicate the model
// tried to hand-write a tool call as content instead of using the
// tool_calls API (§4.6 step 6).
var malformedToolCallTags = []string{
	"<tool_call>",
	"<arg_key>",
	"<arg_value>",
	"<xai:function_call>",
	"<parameter name=",
}

// looksLikeMalformedToolCall reports whether content contains one of the
// known hand-written-tool-call markers.
func looksLikeMalformedToolCall(content string) bool {
	for _, tag := range malformedToolCallTags {
		if strings.Contains(content, tag) {
			return true
		}
	}
	return false
}

// parseFailureHint builds the tool-result content synthesized on a JSON
// parse failure: the raw input (truncated), the parse error, and the five
// correction hints.
func parseFailureHint(rawArgs string, parseErr error) string {
	preview := rawArgs
	if len(preview) > rawInputPreviewChars {
		preview = preview[:rawInputPreviewChars]
	}
	var b strings.Builder
	b.WriteString("Failed to parse tool arguments as JSON.\n")
	b.WriteString("Raw input (truncated): ")
	b.WriteString(preview)
	b.WriteString("\nParse error: ")
	b.WriteString(parseErr.Error())
	b.WriteString("\nCorrect your JSON:\n")
	for _, hint := range jsonCorrectionHints {
		b.WriteString("- ")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	return b.String()
}

// schemaFailureHint builds the tool-result content synthesized when
// arguments parse but fail schema validation.
func schemaFailureHint(validationErr error) string {
	var b strings.Builder
	b.WriteString("Tool arguments did not match the required schema: ")
	b.WriteString(validationErr.Error())
	b.WriteString("\nCorrect your JSON:\n")
	for _, hint := range jsonCorrectionHints {
		b.WriteString("- ")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	return b.String()
}

var trailingSpecialToken = regexp.MustCompile(`<\|[^|]*\|>`)

// sanitizeToolName strips trailing `<|...|>` special tokens and
// surrounding whitespace (§4.6 step 8a). It returns "" if nothing usable
// remains.
func sanitizeToolName(name string) string {
	cleaned := trailingSpecialToken.ReplaceAllString(name, "")
	return strings.TrimSpace(cleaned)
}
