package resilience_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/resilience"
)

func TestFallbackGroup_FirstSuccessWins(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup[string](resilience.FallbackConfig{})
	fg.Add("cloud", "cloud-value")
	fg.Add("local", "local-value")

	var consulted []string
	result, winner, err := resilience.ExecuteWithResult(fg, func(v string) (string, error) {
		consulted = append(consulted, v)
		return "transcript from " + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != "cloud" {
		t.Errorf("winner = %q, want cloud", winner)
	}
	if result != "transcript from cloud-value" {
		t.Errorf("result = %q", result)
	}
	if len(consulted) != 1 {
		t.Errorf("later backends must not be consulted after a success, got %v", consulted)
	}
}

func TestFallbackGroup_FallsThroughToSecond(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup[string](resilience.FallbackConfig{})
	fg.Add("cloud", "cloud")
	fg.Add("local", "local")

	result, winner, err := resilience.ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "cloud" {
			return "", errors.New("rate limit (HTTP 429)")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winner != "local" {
		t.Errorf("winner = %q, want local", winner)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
}

func TestFallbackGroup_AllFailConcatenatesErrors(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup[string](resilience.FallbackConfig{})
	fg.Add("cloud", "cloud")
	fg.Add("local", "local")

	_, _, err := resilience.ExecuteWithResult(fg, func(v string) (string, error) {
		return "", errors.New(v + " broke")
	})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Fatalf("error should wrap ErrAllFailed, got: %v", err)
	}
	for _, want := range []string{"cloud broke", "local broke"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should carry %q, got: %v", want, err)
		}
	}
}

func TestFallbackGroup_OpenBreakerSkipsEntry(t *testing.T) {
	t.Parallel()
	fg := resilience.NewFallbackGroup[string](resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.Add("flaky", "flaky")
	fg.Add("steady", "steady")

	var flakyCalls int
	run := func() (string, string, error) {
		return resilience.ExecuteWithResult(fg, func(v string) (string, error) {
			if v == "flaky" {
				flakyCalls++
				return "", errors.New("boom")
			}
			return "ok", nil
		})
	}

	// Two failures trip the flaky entry's breaker.
	for i := 0; i < 2; i++ {
		if _, winner, err := run(); err != nil || winner != "steady" {
			t.Fatalf("run %d: winner=%q err=%v", i, winner, err)
		}
	}
	// The third call must skip flaky entirely.
	if _, winner, err := run(); err != nil || winner != "steady" {
		t.Fatalf("winner=%q err=%v", winner, err)
	}
	if flakyCalls != 2 {
		t.Errorf("flaky consulted %d times, want 2 (breaker should skip it afterwards)", flakyCalls)
	}
}

func TestCircuitBreaker_ProbesAfterReset(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "probe-test",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
	})

	if err := cb.Execute(func() error { return errors.New("boom") }); err == nil {
		t.Fatal("expected failure")
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("breaker should be open, got: %v", err)
	}

	time.Sleep(15 * time.Millisecond)

	// First call after the reset timeout is the probe; success closes.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe should be allowed, got: %v", err)
	}
	if cb.Open() {
		t.Error("breaker should be closed after a successful probe")
	}
}
