package embedding

import "errors"

var (
	// ErrUnavailable marks a batch whose retries were exhausted against a
	// transient failure (timeout, rate limit, 5xx). The failure is scoped to
	// that batch; other batches of the same document may still succeed.
	ErrUnavailable = errors.New("embedding service unavailable")

	// ErrNotRetryable marks failures that will not resolve on retry: bad
	// credentials, unknown model, dimension mismatch. Providers wrap these so
	// the orchestrator can abort the whole operation immediately.
	ErrNotRetryable = errors.New("embedding request rejected")
)
