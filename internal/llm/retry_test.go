package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRetryPolicyWait_Schedule(t *testing.T) {
	p := RetryPolicy{InitialDelay: 5 * time.Second, Base: 2, MaxDelay: 60 * time.Second, MaxRetries: 10}
	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second, // 80s capped
		60 * time.Second,
		60 * time.Second,
	}
	for n, w := range want {
		if got := p.Wait(n); got != w {
			t.Fatalf("Wait(%d)=%v want %v", n, got, w)
		}
	}
	if got := p.Wait(-1); got != 5*time.Second {
		t.Fatalf("Wait(-1)=%v want %v", got, 5*time.Second)
	}
	// Huge n must cap instead of overflowing.
	if got := p.Wait(4000); got != 60*time.Second {
		t.Fatalf("Wait(4000)=%v want %v", got, 60*time.Second)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Base: 2, MaxDelay: time.Minute, MaxRetries: 5}
	rateLimited := ErrorFromHTTPStatus("p", 429, "slow down", nil, nil)

	var delays []time.Duration
	attempts := 0
	v, err := Retry(context.Background(), p, recordingSleep(&delays), nil, func() (string, error) {
		attempts++
		if attempts <= 2 {
			return "", rateLimited
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if v != "ok" {
		t.Fatalf("value: got %q", v)
	}
	if attempts != 3 {
		t.Fatalf("attempts: got %d want 3", attempts)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("delays: got %v want [1s 2s]", delays)
	}
}

func TestRetry_NonRetryableShortCircuits(t *testing.T) {
	p := DefaultRetryPolicy()
	permanent := ErrorFromHTTPStatus("p", 401, "bad key", nil, nil)

	var delays []time.Duration
	attempts := 0
	_, err := Retry(context.Background(), p, recordingSleep(&delays), nil, func() (int, error) {
		attempts++
		return 0, permanent
	})
	if attempts != 1 {
		t.Fatalf("attempts: got %d want 1", attempts)
	}
	if len(delays) != 0 {
		t.Fatalf("no sleep expected, got %v", delays)
	}
	// The original error comes back unwrapped.
	if err != permanent {
		t.Fatalf("error identity lost: got %v", err)
	}
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("classification lost: got %T", err)
	}
}

func TestRetry_ExhaustionReturnsOriginalError(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Millisecond, Base: 2, MaxDelay: time.Second, MaxRetries: 3}
	unavailable := ErrorFromHTTPStatus("p", 503, "overloaded", nil, nil)

	var delays []time.Duration
	attempts := 0
	_, err := Retry(context.Background(), p, recordingSleep(&delays), nil, func() (int, error) {
		attempts++
		return 0, unavailable
	})
	if attempts != p.MaxRetries+1 {
		t.Fatalf("attempts: got %d want %d", attempts, p.MaxRetries+1)
	}
	if len(delays) != p.MaxRetries {
		t.Fatalf("sleeps: got %d want %d", len(delays), p.MaxRetries)
	}
	var total time.Duration
	for _, d := range delays {
		total += d
	}
	if max := time.Duration(p.MaxRetries) * p.MaxDelay; total > max {
		t.Fatalf("total delay %v exceeds bound %v", total, max)
	}
	if err != unavailable {
		t.Fatalf("error identity lost: got %v", err)
	}
}

func TestRetry_MaxRetriesZeroMeansOneAttempt(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, Base: 2, MaxDelay: time.Minute}
	attempts := 0
	_, err := Retry(context.Background(), p, recordingSleep(new([]time.Duration)), nil, func() (int, error) {
		attempts++
		return 0, ErrorFromHTTPStatus("p", 429, "slow", nil, nil)
	})
	if attempts != 1 {
		t.Fatalf("attempts: got %d want 1", attempts)
	}
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRetry_CustomPredicateOverridesClassification(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Millisecond, Base: 2, MaxDelay: time.Second, MaxRetries: 2}
	plain := errors.New("flaky")

	attempts := 0
	_, err := Retry(context.Background(), p, recordingSleep(new([]time.Duration)), func(error) bool { return true }, func() (int, error) {
		attempts++
		return 0, plain
	})
	if attempts != 3 {
		t.Fatalf("attempts: got %d want 3", attempts)
	}
	if err != plain {
		t.Fatalf("error identity lost: got %v", err)
	}
}

func TestRetry_PolicyPredicateUsedWhenArgNil(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Millisecond, Base: 2, MaxDelay: time.Second, MaxRetries: 2,
		Retryable: func(error) bool { return false }}

	attempts := 0
	_, _ = Retry(context.Background(), p, recordingSleep(new([]time.Duration)), nil, func() (int, error) {
		attempts++
		return 0, ErrorFromHTTPStatus("p", 429, "slow", nil, nil)
	})
	if attempts != 1 {
		t.Fatalf("policy predicate ignored: attempts=%d", attempts)
	}
}

func TestRetry_CanceledDuringSleep(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Millisecond, Base: 2, MaxDelay: time.Second, MaxRetries: 5}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := Retry(ctx, p, nil, nil, func() (int, error) {
		attempts++
		return 0, ErrorFromHTTPStatus("p", 503, "down", nil, nil)
	})
	if attempts != 1 {
		t.Fatalf("attempts: got %d want 1", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
}

func TestRetry_SuccessFirstTry(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), DefaultRetryPolicy(), recordingSleep(new([]time.Duration)), nil, func() (string, error) {
		attempts++
		return "first", nil
	})
	if err != nil || v != "first" || attempts != 1 {
		t.Fatalf("got v=%q err=%v attempts=%d", v, err, attempts)
	}
}
