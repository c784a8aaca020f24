package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/abhisek/quizrag/internal/logger"
)

// RetryProvider is a decorator that retries transient errors with
// capped exponential backoff.
type RetryProvider struct {
	inner   Provider
	config  RetryConfig
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(attempt int, wait time.Duration, err error)
}

// RetryOption customises a RetryProvider.
type RetryOption func(*RetryProvider)

// WithSleeper replaces the wait between attempts. Tests use it to observe
// backoff without waiting.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(r *RetryProvider) { r.sleep = fn }
}

// WithRetryHook is called before every retry with the upcoming attempt number.
func WithRetryHook(fn func(attempt int, wait time.Duration, err error)) RetryOption {
	return func(r *RetryProvider) { r.onRetry = fn }
}

// WithRetryLogger sets the logger used for retry diagnostics.
func WithRetryLogger(log *logger.Logger) RetryOption {
	return func(r *RetryProvider) { r.log = log }
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig, opts ...RetryOption) *RetryProvider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	r := &RetryProvider{
		inner:  p,
		config: cfg,
		log:    logger.Nop(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	var prevWait time.Duration

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		resp, err := r.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsTransient(err) {
			return nil, err
		}

		// Last attempt: don't sleep, surface the failure.
		if attempt == r.config.MaxAttempts {
			break
		}

		wait := r.backoff(attempt-1, err, prevWait)
		prevWait = wait

		r.log.Warn("LLM call failed, retrying",
			"model", r.inner.ModelID(),
			"next_attempt", attempt+1,
			"max_attempts", r.config.MaxAttempts,
			"wait", wait.String(),
			"error", err.Error(),
		)
		if r.onRetry != nil {
			r.onRetry(attempt+1, wait, err)
		}

		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &ErrRetriesExhausted{Attempts: r.config.MaxAttempts, Err: lastErr}
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

func (r *RetryProvider) attempt(ctx context.Context, req Request) (*Response, error) {
	if r.config.AttemptTimeout <= 0 {
		return r.inner.Generate(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	resp, err := r.inner.Generate(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		var timeout *ErrTimeout
		if !errors.As(err, &timeout) {
			err = &ErrTimeout{Err: err}
		}
	}
	return resp, err
}

// backoff computes the wait before the retry following attempt (0-based).
// Waits never decrease across attempts and never exceed MaxWait.
func (r *RetryProvider) backoff(attempt int, err error, prev time.Duration) time.Duration {
	wait := time.Duration(float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt)))

	// Respect RetryAfter for rate limits, within the cap.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > wait {
		wait = rl.RetryAfter
	}

	if r.config.MaxWait > 0 && wait > r.config.MaxWait {
		wait = r.config.MaxWait
	}
	if wait < prev {
		wait = prev
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
