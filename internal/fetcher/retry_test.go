package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"poolScope/internal/model"
)

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	wantErr := fmt.Errorf("%w: truncated payload", model.ErrDecode)

	err := withRetry(context.Background(), 5, time.Millisecond, model.Retryable, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, model.ErrDecode) {
		t.Fatalf("withRetry returned %v, want decode error", err)
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1 for a deterministic error", calls)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), 3, time.Millisecond, model.Retryable, func(context.Context) error {
		calls++
		return fmt.Errorf("%w: connection refused", model.ErrChainUnreachable)
	})
	if !errors.Is(err, model.ErrChainUnreachable) {
		t.Fatalf("withRetry returned %v, want chain unreachable", err)
	}
	if calls != 4 {
		t.Fatalf("fn ran %d times, want 4 (1 initial + 3 retries)", calls)
	}
}

func TestWithRetryZeroBudgetSingleAttempt(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), 0, time.Millisecond, model.Retryable, func(context.Context) error {
		calls++
		return fmt.Errorf("%w: connection refused", model.ErrChainUnreachable)
	})
	if err == nil {
		t.Fatal("withRetry returned nil, want the attempt error")
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1 with a zero budget", calls)
	}
}

func TestWithRetrySucceedsMidway(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), 3, time.Millisecond, model.Retryable, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky endpoint", model.ErrChainUnreachable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry returned %v, want nil after recovery", err)
	}
	if calls != 3 {
		t.Fatalf("fn ran %d times, want 3", calls)
	}
}

func TestWithRetryHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := withRetry(ctx, 5, 50*time.Millisecond, model.Retryable, func(context.Context) error {
		calls++
		return fmt.Errorf("%w: connection refused", model.ErrChainUnreachable)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("withRetry returned %v, want deadline exceeded from the backoff wait", err)
	}
	if calls != 1 {
		t.Fatalf("fn ran %d times, want 1 before the context expired", calls)
	}
}
