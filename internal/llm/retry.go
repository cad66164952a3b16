package llm

import (
	"context"
	"math"
	"time"
)

// SleepFunc suspends for d or until ctx is done. Injectable so retry
// schedules can be tested without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// DefaultSleep is the SleepFunc used when none is supplied. It returns
// ctx.Err() when the context ends before the delay elapses.
func DefaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryPolicy is the backoff schedule plus the transient-error
// classification for one logical call. The classification and the
// exponential math are independently replaceable.
type RetryPolicy struct {
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// Base is the exponent base of the backoff curve.
	Base float64
	// MaxDelay caps every computed wait.
	MaxDelay time.Duration
	// MaxRetries bounds the number of retries; a call therefore runs at
	// most MaxRetries+1 times.
	MaxRetries int
	// Retryable overrides the default transient classification when set.
	Retryable func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 5 * time.Second,
		Base:         2,
		MaxDelay:     60 * time.Second,
		MaxRetries:   5,
	}
}

// Wait returns the delay before retry n (0-based):
// min(MaxDelay, InitialDelay * Base^n), computed in float seconds so
// large n cannot overflow Duration arithmetic.
func (p RetryPolicy) Wait(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	secs := p.InitialDelay.Seconds() * math.Pow(p.Base, float64(n))
	if maxSecs := p.MaxDelay.Seconds(); maxSecs > 0 && (secs > maxSecs || math.IsInf(secs, 1)) {
		secs = maxSecs
	}
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// Retry runs call until it succeeds, fails with a non-retryable error, or
// exhausts the retry budget, sleeping policy.Wait(n) between attempts.
//
// The returned error is always the call's own error value, unwrapped and
// unannotated, so callers can branch on the underlying classification.
// retryable, when non-nil, overrides policy.Retryable; when both are nil
// the default classification (IsRetryable) applies. A sleep cut short by
// context cancellation aborts with the context's error.
func Retry[T any](ctx context.Context, policy RetryPolicy, sleep SleepFunc, retryable func(error) bool, call func() (T, error)) (T, error) {
	var zero T
	if sleep == nil {
		sleep = DefaultSleep
	}
	pred := retryable
	if pred == nil {
		pred = policy.Retryable
	}
	if pred == nil {
		pred = IsRetryable
	}

	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for n := 0; n < attempts; n++ {
		v, err := call()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !pred(err) {
			return zero, err
		}
		if n == attempts-1 {
			break
		}
		if serr := sleep(ctx, policy.Wait(n)); serr != nil {
			return zero, serr
		}
	}
	return zero, lastErr
}
