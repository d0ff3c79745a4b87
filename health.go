package bible

// HealthStatus summarises the client's view of the API. Circuit is nil when
// no circuit breaker is configured.
type HealthStatus struct {
	// Healthy is false only while the circuit breaker is open.
	Healthy bool `json:"healthy"`

	// Status is "ok", "degraded" (half-open) or "unavailable" (open).
	Status string `json:"status"`

	// Circuit describes the breaker, if any.
	Circuit *CircuitHealth `json:"circuit,omitempty"`

	// Retry is a snapshot of the retry statistics.
	Retry RetryStats `json:"retry"`
}

// CircuitHealth is the breaker state and counts for the current interval.
type CircuitHealth struct {
	State                string `json:"state"`
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

// GetHealth returns the health status of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) GetHealth() HealthStatus {
	state := w.State()
	counts := w.Counts()

	health := HealthStatus{
		Circuit: &CircuitHealth{
			State:                state.String(),
			Requests:             counts.Requests,
			TotalSuccesses:       counts.TotalSuccesses,
			TotalFailures:        counts.TotalFailures,
			ConsecutiveFailures:  counts.ConsecutiveFailures,
			ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		},
	}

	switch state {
	case StateClosed:
		health.Healthy = true
		health.Status = "ok"
	case StateHalfOpen:
		health.Healthy = true
		health.Status = "degraded"
	case StateOpen:
		health.Healthy = false
		health.Status = "unavailable"
	default:
		health.Status = "unknown"
	}

	return health
}
