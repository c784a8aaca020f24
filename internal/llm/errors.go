package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down, unreachable, or
// returned a generic upstream error.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrTimeout indicates a single attempt ran out of time while the caller's
// own context was still live.
type ErrTimeout struct {
	Err error
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("LLM request timed out: %v", e.Err)
}

func (e *ErrTimeout) Unwrap() error { return e.Err }

// ErrRequestRejected indicates the provider refused the request itself
// (bad credentials, malformed parameters). Retrying cannot help.
type ErrRequestRejected struct {
	StatusCode int
	Err        error
}

func (e *ErrRequestRejected) Error() string {
	return fmt.Sprintf("LLM request rejected (status %d): %v", e.StatusCode, e.Err)
}

func (e *ErrRequestRejected) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the provider answered without usable text.
type ErrInvalidResponse struct {
	Err error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content string
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

// ErrRetriesExhausted is returned once every attempt failed transiently.
type ErrRetriesExhausted struct {
	Attempts int
	Err      error
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("LLM call failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ErrRetriesExhausted) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: timeouts, rate limits
// and generic upstream failures are; caller cancellation, rejected requests
// and truncation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var timeout *ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var rejected *ErrRequestRejected
	if errors.As(err, &rejected) {
		return false
	}
	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}
	var invalid *ErrInvalidResponse
	if errors.As(err, &invalid) {
		return false
	}

	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return true
	}
	var unavail *ErrProviderUnavailable
	if errors.As(err, &unavail) {
		return true
	}

	// Anything else (network, unknown) is treated as a generic upstream error.
	return true
}

// classifyStatus maps an HTTP status from any SDK to the error taxonomy.
func classifyStatus(status int, err error) error {
	switch {
	case status == 429:
		return &ErrRateLimit{Err: err}
	case status == 408:
		return &ErrTimeout{Err: err}
	case status >= 500:
		return &ErrProviderUnavailable{Err: err}
	case status >= 400:
		return &ErrRequestRejected{StatusCode: status, Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}

// contextError keeps caller cancellation distinguishable from a
// per-attempt timeout. It returns nil when err is not context related.
func contextError(ctx context.Context, err error) error {
	if ctx.Err() != nil && ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrTimeout{Err: err}
	}
	return nil
}
