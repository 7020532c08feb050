// Package resilience provides the failure-containment primitives shared by
// the pipeline's external call sites: a circuit breaker, a backend fallback
// group, and a single retry policy with rate-limit awareness.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breakerState is the internal operating mode of a [CircuitBreaker].
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before letting a
	// single probe call through. Default: 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker is a three-state breaker: closed forwards every call, open
// rejects immediately, and after the reset timeout a single probe decides
// whether to close again.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	state           breakerState
	consecutiveFail int
	openedAt        time.Time
	probing         bool
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn until the reset timeout elapses; the
// first call after that is the probe.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case stateOpen:
		if time.Since(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = stateHalfOpen
		cb.probing = false
		slog.Info("circuit breaker half-open, probing", "name", cb.name)
		fallthrough
	case stateHalfOpen:
		if cb.probing {
			// Another goroutine already holds the probe slot.
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.consecutiveFail++
		if cb.state == stateHalfOpen || cb.consecutiveFail >= cb.maxFailures {
			if cb.state != stateOpen {
				slog.Warn("circuit breaker opened",
					"name", cb.name, "consecutive_failures", cb.consecutiveFail)
			}
			cb.state = stateOpen
			cb.openedAt = time.Now()
		}
		cb.probing = false
		return err
	}

	if cb.state == stateHalfOpen {
		slog.Info("circuit breaker closed after successful probe", "name", cb.name)
	}
	cb.state = stateClosed
	cb.consecutiveFail = 0
	cb.probing = false
	return nil
}

// Open reports whether the breaker is currently rejecting calls.
func (cb *CircuitBreaker) Open() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen && time.Since(cb.openedAt) < cb.resetTimeout
}

// Reset forces the breaker back to closed, clearing failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = stateClosed
	cb.consecutiveFail = 0
	cb.probing = false
}
