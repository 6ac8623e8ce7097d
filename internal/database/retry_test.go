package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsbot/internal/retry"

	"github.com/stretchr/testify/assert"
)

func fastRetries(t *testing.T) {
	t.Helper()
	original := dbRetryConfig
	dbRetryConfig = retry.BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	}
	t.Cleanup(func() { dbRetryConfig = original })
}

func TestRetryableDBOperation_Success(t *testing.T) {
	fastRetries(t)
	callCount := 0

	err := retryableDBOperation(context.Background(), func() error {
		callCount++
		return nil
	}, "test operation")

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestRetryableDBOperation_SuccessAfterRetries(t *testing.T) {
	fastRetries(t)
	callCount := 0

	err := retryableDBOperation(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("database is locked")
		}
		return nil
	}, "test operation")

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestRetryableDBOperation_NonRetryableError(t *testing.T) {
	fastRetries(t)
	callCount := 0

	err := retryableDBOperation(context.Background(), func() error {
		callCount++
		return errors.New("UNIQUE constraint failed: auth_states.session_name")
	}, "save auth state")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "save auth state failed (non-retryable)")
	assert.Equal(t, 1, callCount)
}

func TestRetryableDBOperation_MaxAttemptsExceeded(t *testing.T) {
	fastRetries(t)
	callCount := 0

	err := retryableDBOperation(context.Background(), func() error {
		callCount++
		return errors.New("database is locked")
	}, "load auth state")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "load auth state failed after 3 attempts")
	assert.Equal(t, 3, callCount)
}

func TestRetryableDBOperation_ContextCancelled(t *testing.T) {
	fastRetries(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryableDBOperation(ctx, func() error { return nil }, "test operation")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database locked", errors.New("database is locked"), true},
		{"table locked", errors.New("database table is locked"), true},
		{"disk I/O", errors.New("disk I/O error"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"unique constraint", errors.New("UNIQUE constraint failed"), false},
		{"no such table", errors.New("no such table: auth_states"), false},
		{"other error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableDBError(tt.err))
		})
	}
}
