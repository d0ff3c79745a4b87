package bible

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeSuccess      = "success"
	OutcomeNetworkError = "network_error"
	OutcomeAPIError     = "api_error"
)

// Cache lookup results used as the "result" label.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds the Prometheus collectors for the client and service.
// A nil *Metrics records nothing.
type Metrics struct {
	// Requests counts logical requests by outcome.
	Requests *prometheus.CounterVec

	// Attempts counts transport invocations, including retries.
	Attempts prometheus.Counter

	// Retries counts attempts after the first one.
	Retries prometheus.Counter

	// Latency observes the duration of whole logical requests.
	Latency prometheus.Histogram

	// CacheLookups counts service cache lookups by result.
	CacheLookups *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bible_requests_total",
				Help: "Total number of API requests by outcome",
			},
			[]string{"outcome"},
		),
		Attempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bible_request_attempts_total",
				Help: "Total number of transport attempts, including retries",
			},
		),
		Retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bible_request_retries_total",
				Help: "Total number of retried attempts",
			},
		),
		Latency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bible_request_duration_seconds",
				Help:    "API request latency in seconds, including retries",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bible_cache_lookups_total",
				Help: "Total number of service cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeRequest(outcome string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
	m.Attempts.Add(float64(attempts))
	if attempts > 1 {
		m.Retries.Add(float64(attempts - 1))
	}
	m.Latency.Observe(elapsed.Seconds())
}

func (m *Metrics) observeCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
