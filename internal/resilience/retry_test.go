package resilience_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/dictaflow/internal/resilience"
)

func fastRetry(classify resilience.Classifier) resilience.Retry {
	return resilience.Retry{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Classify:    classify,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	err := fastRetry(nil).Do(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_BudgetExhausted(t *testing.T) {
	t.Parallel()
	calls := 0
	err := fastRetry(nil).Do(context.Background(), "test", func() error {
		calls++
		return errors.New("always failing")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want exactly MaxAttempts (3)", calls)
	}
	if !strings.Contains(err.Error(), "attempts exhausted") {
		t.Errorf("error should mention exhausted budget, got: %v", err)
	}
}

func TestRetry_FatalNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	classify := func(error) resilience.Class { return resilience.ClassFatal }
	err := fastRetry(classify).Do(context.Background(), "test", func() error {
		calls++
		return errors.New("HTTP 400 bad request")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (fatal errors must not be retried)", calls)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := resilience.Retry{MaxAttempts: 5, BaseDelay: time.Hour}
	err := r.Do(ctx, "test", func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got: %v", err)
	}
}

func TestRetry_ResultPropagated(t *testing.T) {
	t.Parallel()
	got, err := resilience.DoWithResult(fastRetry(nil), context.Background(), "test", func() (string, error) {
		return "page-id-123", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "page-id-123" {
		t.Errorf("result = %q, want page-id-123", got)
	}
}
