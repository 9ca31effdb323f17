package llmclient

import (
	"errors"
	"strings"
)

// ContextLengthError is raised when the provider rejects a request because
// the conversation no longer fits the model's context window. The Agent
// Loop catches this distinguished type to trigger a single rollback-and-
// retry before abandoning the run.
type ContextLengthError struct {
	Message string
}

func (e *ContextLengthError) Error() string { return e.Message }

// QuotaExceededError is raised when the provider reports the account has
// exhausted its quota or billing limit. The Agent Loop terminates the run
// gracefully when it sees this type.
type QuotaExceededError struct {
	Message string
}

func (e *QuotaExceededError) Error() string { return e.Message }

// ErrCancelled is returned by Complete/Stream when the in-flight request
// was aborted via Client.Abort, or when a call is attempted against a
// client whose previous request was cancelled and no new request has been
// established yet.
var ErrCancelled = errors.New("Request cancelled")

// contextLengthSubstrings groups of substrings whose joint presence in an
// error message signals a context-length-exceeded condition (§4.3).
var contextLengthGroups = [][]string{
	{"context", "length"},
	{"maximum context"},
	{"token limit"},
	{"too many tokens"},
}

// looksLikeContextLengthError applies the §4.3 substring classifier.
func looksLikeContextLengthError(msg string) bool {
	lower := strings.ToLower(msg)
	for _, group := range contextLengthGroups {
		all := true
		for _, s := range group {
			if !strings.Contains(lower, s) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// looksLikeQuotaError recognizes provider quota/billing rejections.
func looksLikeQuotaError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient_quota") ||
		strings.Contains(lower, "billing")
}

// isRetryableStatus reports whether an HTTP status code is retryable under
// §4.3: 429 and any 5xx.
func isRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}

// isRetryableNetworkError recognizes connection-level failures (refused,
// timeout, DNS, reset, abort) that carry no HTTP status.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused", "timeout", "deadline exceeded", "no such host",
		"dns", "connection reset", "eof", "broken pipe", "i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
