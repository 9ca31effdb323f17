package llmclient

import (
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// classifyError maps a raw SDK/transport error onto the §4.3 taxonomy,
// surfacing ContextLengthError/QuotaExceededError where the message
// matches, and passing everything else through unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if looksLikeQuotaError(apiErr.Message) && (apiErr.HTTPStatusCode == 402 || apiErr.HTTPStatusCode == 429) {
			return &QuotaExceededError{Message: apiErr.Message}
		}
		if looksLikeContextLengthError(apiErr.Message) {
			return &ContextLengthError{Message: apiErr.Message}
		}
		return err
	}
	if looksLikeContextLengthError(err.Error()) {
		return &ContextLengthError{Message: err.Error()}
	}
	return err
}

// isRetryable applies the §4.3 retryable/non-retryable split: network
// failures, 429, and 5xx are retryable; explicit cancellation, context-
// length, quota, and other 4xx responses are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if looksLikeContextLengthError(apiErr.Message) || looksLikeQuotaError(apiErr.Message) {
			return false
		}
		return isRetryableStatus(apiErr.HTTPStatusCode)
	}
	return isRetryableNetworkError(err)
}
