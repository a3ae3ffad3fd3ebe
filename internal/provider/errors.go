package provider

import "errors"

var (
	// ErrRateLimit: the provider asked us to slow down (HTTP 429).
	ErrRateLimit = errors.New("provider: rate limited")

	// ErrContextLength: the transcript handed to the summarizer did not fit
	// the model's window. Retrying the same prompt cannot succeed.
	ErrContextLength = errors.New("provider: context length exceeded")

	// ErrProviderDown: overloaded, 5xx or unreachable.
	ErrProviderDown = errors.New("provider: unavailable")

	// ErrNoProvider: an LLM-backed component was requested but no provider
	// module is configured.
	ErrNoProvider = errors.New("provider: no llm provider configured")
)

// IsRetryable reports whether a later attempt with the same request may
// succeed. The summarizer and extractor fallbacks do not retry; the value is
// used to label degraded events.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
