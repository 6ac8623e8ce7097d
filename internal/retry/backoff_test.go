package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.InitialDelay != 100*time.Millisecond {
		t.Errorf("Expected initial delay of 100ms, got %v", config.InitialDelay)
	}
	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected max delay of 30s, got %v", config.MaxDelay)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Expected multiplier of 2.0, got %v", config.Multiplier)
	}
	if config.MaxAttempts != 5 {
		t.Errorf("Expected max attempts of 5, got %v", config.MaxAttempts)
	}
	if !config.Jitter {
		t.Error("Expected jitter to be enabled by default")
	}
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	attempts := 0
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	attempts := 0
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestBackoff_FailureAfterMaxAttempts(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	expected := errors.New("persistent error")
	attempts := 0
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		return expected
	})

	if !errors.Is(err, expected) {
		t.Errorf("Expected %v, got %v", expected, err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestBackoff_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{InitialDelay: time.Millisecond})

	attempts := 0
	_ = backoff.Retry(context.Background(), func() error {
		attempts++
		return errors.New("fail")
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff_WithPredicate_NonRetryableError(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	fatal := errors.New("no such table")
	attempts := 0
	err := backoff.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return fatal
	}, func(err error) bool {
		return !errors.Is(err, fatal)
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected %v, got %v", fatal, err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestBackoff_ContextCancelledBeforeOperation(t *testing.T) {
	backoff := NewBackoff(DefaultBackoffConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := backoff.Retry(ctx, func() error {
		called = true
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("Operation must not run with a cancelled context")
	}
}

func TestBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		MaxAttempts:  3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := backoff.Retry(ctx, func() error { return errors.New("fail") })

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Retry did not stop waiting when the context expired")
	}
}

func TestBackoff_ExponentialIncrease(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	})

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for i, want := range expected {
		if got := backoff.GetNextDelay(i + 1); got != want {
			t.Errorf("Attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoff_MaxDelayConstraint(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   10.0,
	})

	for _, attempt := range []int{3, 10, 100, 5000} {
		if got := backoff.GetNextDelay(attempt); got != 5*time.Second {
			t.Errorf("Attempt %d: expected delay capped at 5s, got %v", attempt, got)
		}
	}
}

func TestBackoff_Normalization(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   0,
	})

	if got := backoff.GetNextDelay(1); got != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %v", got)
	}
	if got := backoff.GetNextDelay(20); got != 50*time.Millisecond {
		t.Errorf("Expected multiplier below 1 to keep the delay flat, got %v", got)
	}
	if got := backoff.GetNextDelay(0); got != 50*time.Millisecond {
		t.Errorf("Expected attempt 0 to use the initial delay, got %v", got)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})

	for i := 0; i < 200; i++ {
		delay := backoff.GetNextDelay(3)
		if delay < 300*time.Millisecond || delay > 500*time.Millisecond {
			t.Fatalf("Jittered delay %v outside 400ms +/- 25%%", delay)
		}
	}
	for i := 0; i < 200; i++ {
		if delay := backoff.GetNextDelay(10); delay > time.Second {
			t.Fatalf("Jittered delay %v exceeds max delay", delay)
		}
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Expected nil for zero delay, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if err := Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled for zero delay on a done context, got %v", err)
	}
}

func TestSecureFloat64(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := secureFloat64()
		if v < 0 || v >= 1 {
			t.Fatalf("secureFloat64 returned %f, outside [0, 1)", v)
		}
	}
}
