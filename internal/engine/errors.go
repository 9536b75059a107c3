package engine

import "errors"

// Sentinel errors for engine operations.
var (
	// ErrRateLimit indicates the engine returned a rate limit response.
	ErrRateLimit = errors.New("engine rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrEngineDown indicates the engine is temporarily unavailable.
	ErrEngineDown = errors.New("engine unavailable")
)

// IsRetryable reports whether the error is transient. The reasoning loop
// never retries; callers such as the batch command use it to decide whether
// to resubmit an alert.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrEngineDown)
}
