package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Class buckets an error for retry purposes.
type Class int

const (
	// ClassTransient errors (network blips, 5xx, timeouts) are retried with
	// standard exponential backoff.
	ClassTransient Class = iota

	// ClassRateLimit errors (HTTP 429, "rate" in the message) are retried
	// with the backoff multiplied so the provider gets room to breathe.
	ClassRateLimit

	// ClassFatal errors (4xx client misuse, malformed requests) are never
	// retried; the call surfaces immediately.
	ClassFatal
)

// Classifier maps an error to its retry [Class].
type Classifier func(error) Class

// Retry is the single retry policy used for every external call site (LLM,
// store create, store retrieve). The three sites previously carried
// near-identical backoff loops; parameterising one policy keeps their
// semantics in lockstep.
type Retry struct {
	// MaxAttempts is the total call budget, first try included. Default: 3.
	MaxAttempts int

	// BaseDelay is the first backoff delay; attempt n waits
	// BaseDelay × 2^(n−1). Default: 2s.
	BaseDelay time.Duration

	// RateLimitMultiplier scales the backoff for rate-limited errors.
	// Default: 2 (doubled backoff).
	RateLimitMultiplier float64

	// Classify buckets errors. When nil every error is [ClassTransient].
	Classify Classifier
}

// Do runs fn under the retry policy. op names the call site for logs.
// The context is checked between attempts; cancellation wins over the budget.
func (r Retry) Do(ctx context.Context, op string, fn func() error) error {
	_, err := DoWithResult(r, ctx, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult runs fn under the retry policy r and returns its result.
// Package-level because Go does not support method-level type parameters.
func DoWithResult[T any](r Retry, ctx context.Context, op string, fn func() (T, error)) (T, error) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := r.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	rateMult := r.RateLimitMultiplier
	if rateMult <= 0 {
		rateMult = 2
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		class := ClassTransient
		if r.Classify != nil {
			class = r.Classify(err)
		}
		if class == ClassFatal {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		if class == ClassRateLimit {
			delay = time.Duration(float64(delay) * rateMult)
			slog.Warn("rate limited, backing off",
				"op", op, "attempt", attempt, "delay", delay)
		} else {
			slog.Debug("transient failure, retrying",
				"op", op, "attempt", attempt, "delay", delay, "error", err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return zero, fmt.Errorf("%s: attempts exhausted (%d): %w", op, maxAttempts, lastErr)
}
