package bible

import (
	"context"
	"errors"
	"log/slog"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerWrapper wraps an Executor with a circuit breaker. Once the
// API keeps failing the breaker opens and requests fail fast without
// reaching the transport, until a probe in half-open state succeeds.
type CircuitBreakerWrapper[Req, Resp any] struct {
	client     Executor[Req, Resp]
	cb         *gobreaker.CircuitBreaker[Resp]
	name       string
	logger     *slog.Logger
	classifier CircuitBreakerErrorClassifier
}

// NewCircuitBreakerWrapper creates a circuit breaker around an Executor.
// A nil config uses DefaultCircuitBreakerConfig.
func NewCircuitBreakerWrapper[Req, Resp any](
	client Executor[Req, Resp],
	config *CircuitBreakerConfig,
) *CircuitBreakerWrapper[Req, Resp] {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	classifier := config.ErrorClassifier
	if classifier == nil {
		classifier = DefaultCircuitBreakerErrorClassifier()
	}

	readyToTrip := config.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultCircuitBreakerConfig().ReadyToTrip
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return readyToTrip(convertGobreakerCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier.ShouldTripCircuit(err)
		},
	}

	return &CircuitBreakerWrapper[Req, Resp]{
		client:     client,
		cb:         gobreaker.NewCircuitBreaker[Resp](settings),
		name:       config.Name,
		logger:     logger,
		classifier: classifier,
	}
}

// Execute runs the request through the circuit breaker. Rejections are
// returned as jp-go-errors circuit breaker errors that still unwrap to the
// gobreaker sentinel.
func (w *CircuitBreakerWrapper[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	resp, err := w.cb.Execute(func() (Resp, error) {
		return w.client.Execute(ctx, req)
	})
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		w.logger.Warn("circuit breaker is open, request rejected",
			"breaker", w.name,
			"error", err)
		return zero, w.breakerError("request rejected", "open", err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		w.logger.Debug("circuit breaker half-open, too many requests",
			"breaker", w.name,
			"error", err)
		return zero, w.breakerError("too many requests in half-open state", "half-open", err)
	default:
		w.logger.Debug("request failed through circuit breaker",
			"breaker", w.name,
			"error", err,
			"should_trip", w.classifier.ShouldTripCircuit(err))
	}
	return zero, err
}

func (w *CircuitBreakerWrapper[Req, Resp]) breakerError(msg, state string, cause error) error {
	counts := w.cb.Counts()
	return jperrors.NewCircuitBreakerError(
		msg,
		w.name,
		state,
		jperrors.WithCause(cause),
		jperrors.WithCounts(jperrors.CircuitCounts{
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
		}),
	)
}

// State returns the current state of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) State() CircuitBreakerState {
	return convertGobreakerState(w.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) Counts() CircuitBreakerCounts {
	return convertGobreakerCounts(w.cb.Counts())
}

func convertGobreakerCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
