package bible

import (
	"math"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one. It is a plain value with no side effects.
type RetryPolicy struct {
	// MaxAttempts is the number of retries allowed after the initial request.
	MaxAttempts int

	// InitialDelay is the delay used for the second retry; the first retry
	// is immediate.
	InitialDelay time.Duration

	// Multiplier is the growth factor applied per retry.
	Multiplier float64

	// MaxDelay caps every computed delay. Zero makes every retry immediate.
	MaxDelay time.Duration

	// Enabled turns retrying on or off.
	Enabled bool
}

// DefaultRetryPolicy returns 3 retries starting at 100ms, doubling, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Enabled:      true,
	}
}

// AggressiveRetryPolicy returns 5 retries starting at 50ms, x1.5, capped at 3s.
func AggressiveRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 50 * time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     3 * time.Second,
		Enabled:      true,
	}
}

// DisabledRetryPolicy returns a policy that never retries.
func DisabledRetryPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 0
	p.Enabled = false
	return p
}

// ShouldRetry reports whether the attempt with the given zero-based index
// may be followed by another one.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return p.Enabled && attempt < p.MaxAttempts
}

// Delay returns the wait before retrying after the given zero-based attempt:
// min(InitialDelay * Multiplier^(attempt-1), MaxDelay), and 0 for attempt 0.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if !p.Enabled || attempt <= 0 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return max(p.MaxDelay, 0)
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Backoff adapts the policy to a go-retry backoff. Every call returns a
// backoff with its own RetryState, so one value serves exactly one request.
func (p RetryPolicy) Backoff() retry.Backoff {
	state := &RetryState{Policy: p}
	return retry.BackoffFunc(state.Next)
}

// RetryState tracks the attempt counter of one logical request.
type RetryState struct {
	Attempt int
	Policy  RetryPolicy
}

// Next returns the delay before the next attempt, or stop=true once the
// policy's budget is spent.
func (s *RetryState) Next() (time.Duration, bool) {
	if !s.Policy.ShouldRetry(s.Attempt) {
		return 0, true
	}
	delay := s.Policy.Delay(s.Attempt)
	s.Attempt++
	return delay, false
}
