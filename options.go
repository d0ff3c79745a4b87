package bible

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public scripture API endpoint.
const DefaultBaseURL = "https://www.abibliadigital.com.br/api/"

// DefaultTimeout is the per-attempt request timeout.
const DefaultTimeout = 5 * time.Second

// ClientConfig holds client configuration options.
type ClientConfig struct {
	// BaseURL is prefixed to every request path.
	// Default: DefaultBaseURL
	BaseURL string

	// UserToken is sent as a bearer token when non-empty.
	UserToken string

	// Timeout bounds a single attempt, not the whole retry loop.
	// Default: 5 seconds
	Timeout time.Duration

	// RetryPolicy drives retry decisions and delays.
	// Default: DefaultRetryPolicy()
	RetryPolicy RetryPolicy

	// ErrorClassifier determines which errors should trigger retries.
	// Default: HTTPStatusClassifier
	ErrorClassifier ErrorClassifier

	// Transport performs a single request. When nil an HTTPTransport is
	// built from BaseURL, RoundTripper and the rate limit.
	Transport Transport

	// RoundTripper is used by the default HTTPTransport.
	RoundTripper http.RoundTripper

	// RateLimit and RateBurst configure a token bucket in front of the
	// default HTTPTransport. Zero disables it.
	RateLimit rate.Limit
	RateBurst int

	// CircuitBreaker enables a breaker between the retry loop and the
	// transport when non-nil.
	CircuitBreaker *CircuitBreakerConfig

	// Metrics receives request counters when non-nil.
	Metrics *Metrics

	// Logger for client operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*ClientConfig)

// WithBaseURL sets the API base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *ClientConfig) {
		c.BaseURL = baseURL
	}
}

// WithUserToken sets the bearer token sent with every request.
func WithUserToken(token string) ClientOption {
	return func(c *ClientConfig) {
		c.UserToken = token
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithRetryPolicy sets the retry policy.
//
// Example:
//
//	bible.WithRetryPolicy(bible.AggressiveRetryPolicy())
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *ClientConfig) {
		c.RetryPolicy = policy
	}
}

// WithErrorClassifier sets a custom error classifier for retry decisions.
func WithErrorClassifier(classifier ErrorClassifier) ClientOption {
	return func(c *ClientConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithTransport replaces the HTTP transport, typically with a stub in tests.
func WithTransport(transport Transport) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// WithRoundTripper sets the http.RoundTripper of the default transport.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.RoundTripper = rt
	}
}

// WithRateLimit limits outgoing attempts to limit per second with the given burst.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *ClientConfig) {
		c.RateLimit = limit
		c.RateBurst = burst
	}
}

// WithCircuitBreaker enables the circuit breaker.
//
// Example:
//
//	bible.WithCircuitBreaker(
//	    bible.WithMaxRequests(1),
//	    bible.WithOpenTimeout(30*time.Second),
//	)
func WithCircuitBreaker(opts ...CircuitBreakerOption) ClientOption {
	return func(c *ClientConfig) {
		cb := DefaultCircuitBreakerConfig()
		for _, opt := range opts {
			opt(cb)
		}
		c.CircuitBreaker = cb
	}
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *ClientConfig) {
		c.Metrics = m
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *ClientConfig) {
		c.Logger = logger
	}
}

// DefaultClientConfig returns client configuration with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         DefaultBaseURL,
		Timeout:         DefaultTimeout,
		RetryPolicy:     DefaultRetryPolicy(),
		ErrorClassifier: DefaultErrorClassifier(),
		Logger:          slog.Default(),
	}
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and state change callbacks.
	// Default: "bible-api"
	Name string

	// ReadyToTrip is called with a copy of counts whenever a request fails in the closed state.
	// If ReadyToTrip returns true, the circuit breaker will be placed into the open state.
	// Default: trips after 5 consecutive failures
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// ErrorClassifier determines which errors should trip the circuit breaker.
	// Default: HTTPStatusClassifier
	ErrorClassifier CircuitBreakerErrorClassifier

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Logger for circuit breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Interval is the cyclic period of the closed state for the circuit breaker
	// to clear the internal counts. If 0, never clears.
	// Default: 60 seconds
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRequests is the number of probes allowed while half-open.
	// Default: 1
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring circuit breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means requests flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the breaker is probing whether the API recovered.
	StateHalfOpen

	// StateOpen means requests are rejected without reaching the API.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithBreakerName sets the breaker name.
func WithBreakerName(name string) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Name = name
	}
}

// WithMaxRequests sets the maximum number of requests in half-open state.
func WithMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithInterval sets the interval for clearing counts in closed state.
func WithInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithOpenTimeout sets how long the breaker stays open.
func WithOpenTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Timeout = timeout
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the circuit.
//
// Example:
//
//	bible.WithReadyToTrip(func(counts bible.CircuitBreakerCounts) bool {
//	    return counts.ConsecutiveFailures >= 3
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithCircuitBreakerErrorClassifier sets a custom error classifier for circuit breaker decisions.
func WithCircuitBreakerErrorClassifier(classifier CircuitBreakerErrorClassifier) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithCircuitBreakerLogger sets a custom logger for circuit breaker operations.
func WithCircuitBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Logger = logger
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration with sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "bible-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		ErrorClassifier: DefaultCircuitBreakerErrorClassifier(),
		Logger:          slog.Default(),
	}
}
