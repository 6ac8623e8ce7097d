package adapter

import (
	"fmt"
	"time"

	"whatsbot/internal/retry"
)

// RestartPolicy decides whether, and after how long, to reconnect. attempt
// counts reconnects since the last successfully opened connection, from 1.
type RestartPolicy interface {
	Next(attempt int) (time.Duration, bool)
}

// ImmediatePolicy reconnects at once, forever.
type ImmediatePolicy struct{}

func (ImmediatePolicy) Next(int) (time.Duration, bool) {
	return 0, true
}

// BackoffPolicy waits with exponential backoff and gives up after
// MaxAttempts reconnects without an open connection. MaxAttempts <= 0 means
// never give up.
type BackoffPolicy struct {
	backoff     *retry.Backoff
	maxAttempts int
}

func NewBackoffPolicy(config retry.BackoffConfig) *BackoffPolicy {
	return &BackoffPolicy{
		backoff:     retry.NewBackoff(config),
		maxAttempts: config.MaxAttempts,
	}
}

func (p *BackoffPolicy) Next(attempt int) (time.Duration, bool) {
	if p.maxAttempts > 0 && attempt > p.maxAttempts {
		return 0, false
	}
	return p.backoff.GetNextDelay(attempt), true
}

// NewRestartPolicy builds a policy by name: "immediate" or "backoff".
func NewRestartPolicy(name string, config retry.BackoffConfig) (RestartPolicy, error) {
	switch name {
	case "", "immediate":
		return ImmediatePolicy{}, nil
	case "backoff":
		return NewBackoffPolicy(config), nil
	default:
		return nil, fmt.Errorf("unknown reconnect policy %q", name)
	}
}
