package pipeline

import (
	"context"
	"errors"
	"time"
)

// Defaults for action and job retries
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryPolicy is an exponential backoff budget
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Sleep defaults to a context-aware timer; tests replace it
	Sleep Sleeper
}

// DefaultRetryPolicy returns 3 retries starting at 1s, capped at 30s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoff,
		MaxBackoff: DefaultMaxBackoff,
	}
}

// Delay is the wait before the given retry (1-based): Backoff * 2^(retry-1),
// capped at MaxBackoff.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = DefaultBackoff
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = DefaultMaxBackoff
	}

	delay := base
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attemptsError carries how many times an action ran before giving up
type attemptsError struct {
	attempts int
	err      error
}

func (e *attemptsError) Error() string { return e.err.Error() }
func (e *attemptsError) Unwrap() error { return e.err }

func attemptsOf(err error) int {
	var ae *attemptsError
	if errors.As(err, &ae) {
		return ae.attempts
	}
	return 1
}
