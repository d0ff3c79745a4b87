package bible

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryWrapper wraps an Executor with retry logic driven by a RetryPolicy.
// The policy and logger can be swapped at runtime; a call in flight keeps
// the values it started with.
type RetryWrapper[Req, Resp any] struct {
	client     Executor[Req, Resp]
	classifier ErrorClassifier
	stats      *retryStats

	mu     sync.RWMutex
	policy RetryPolicy
	logger *slog.Logger
}

// retryStats tracks retry operation statistics.
type retryStats struct {
	mu              sync.RWMutex
	totalAttempts   int64
	totalRetries    int64
	totalSuccesses  int64
	totalFailures   int64
	lastAttemptTime time.Time
	lastError       error
}

// NewRetryWrapper creates a retry wrapper around an Executor. A nil
// classifier or logger falls back to the defaults.
func NewRetryWrapper[Req, Resp any](
	client Executor[Req, Resp],
	policy RetryPolicy,
	classifier ErrorClassifier,
	logger *slog.Logger,
) *RetryWrapper[Req, Resp] {
	if classifier == nil {
		classifier = DefaultErrorClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryWrapper[Req, Resp]{
		client:     client,
		classifier: classifier,
		stats:      &retryStats{},
		policy:     policy,
		logger:     logger,
	}
}

// SetPolicy replaces the retry policy for subsequent calls.
func (w *RetryWrapper[Req, Resp]) SetPolicy(policy RetryPolicy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.policy = policy
}

// Policy returns the current retry policy.
func (w *RetryWrapper[Req, Resp]) Policy() RetryPolicy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.policy
}

// SetLogger replaces the logger for subsequent calls.
func (w *RetryWrapper[Req, Resp]) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
}

// Execute performs the request with retry logic.
func (w *RetryWrapper[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	resp, _, err := w.Do(ctx, req)
	return resp, err
}

// Do performs the request with retry logic and also returns the number of
// invocations of the wrapped Executor. attrs are added to every log event.
func (w *RetryWrapper[Req, Resp]) Do(ctx context.Context, req Req, attrs ...any) (Resp, int, error) {
	var zero Resp

	w.mu.RLock()
	policy := w.policy
	logger := w.logger
	w.mu.RUnlock()

	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("context already done before request", "error", err)
		return zero, 0, err
	}

	var response Resp
	var attempts int

	err := retry.Do(ctx, policy.Backoff(), func(ctx context.Context) error {
		attempt := attempts
		attempts++

		w.stats.mu.Lock()
		w.stats.totalAttempts++
		if attempt > 0 {
			w.stats.totalRetries++
		}
		w.stats.lastAttemptTime = time.Now()
		w.stats.mu.Unlock()

		logger.Debug("making api request", "attempt", attempt)

		resp, err := w.client.Execute(ctx, req)
		if err == nil {
			logger.Info("api request succeeded", "attempt", attempt, "attempts", attempts)
			response = resp
			return nil
		}

		if !w.classifier.IsRetryable(err) {
			logger.Debug("non-retryable error, giving up", "attempt", attempt, "error", err)
			return err
		}

		if policy.ShouldRetry(attempt) {
			logger.Warn("api request failed, retrying",
				"attempt", attempt,
				"delay", policy.Delay(attempt),
				"error", err)
		}

		return retry.RetryableError(err)
	})
	if err != nil {
		logger.Error("api request failed", "attempts", attempts, "error", err)
		w.stats.mu.Lock()
		w.stats.totalFailures++
		w.stats.lastError = err
		w.stats.mu.Unlock()
		return zero, attempts, err
	}

	w.stats.mu.Lock()
	w.stats.totalSuccesses++
	w.stats.mu.Unlock()

	return response, attempts, nil
}

// RetryStats holds statistics about retry operations.
type RetryStats struct {
	// TotalAttempts is the total number of attempts made (including initial and retries)
	TotalAttempts int64 `json:"total_attempts"`

	// TotalRetries is the number of retry attempts (not including initial attempts)
	TotalRetries int64 `json:"total_retries"`

	// TotalSuccesses is the number of successful operations
	TotalSuccesses int64 `json:"total_successes"`

	// TotalFailures is the number of failed operations (after all retries exhausted)
	TotalFailures int64 `json:"total_failures"`

	// LastAttemptTime is the time of the last attempt
	LastAttemptTime time.Time `json:"last_attempt_time"`

	// LastError is the last error encountered (if any)
	LastError error `json:"-"`
}

// GetRetryStats returns a snapshot of the retry statistics.
func (w *RetryWrapper[Req, Resp]) GetRetryStats() RetryStats {
	w.stats.mu.RLock()
	defer w.stats.mu.RUnlock()

	return RetryStats{
		TotalAttempts:   w.stats.totalAttempts,
		TotalRetries:    w.stats.totalRetries,
		TotalSuccesses:  w.stats.totalSuccesses,
		TotalFailures:   w.stats.totalFailures,
		LastAttemptTime: w.stats.lastAttemptTime,
		LastError:       w.stats.lastError,
	}
}
