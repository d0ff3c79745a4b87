package bible

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is the resilient API client: it issues GET requests through an
// optional circuit breaker and a retry loop and returns the decoded JSON
// body. It is safe for concurrent use; setters affect calls issued after
// they return.
type Client struct {
	retrier   *RetryWrapper[*Request, *Response]
	breaker   *CircuitBreakerWrapper[*Request, *Response]
	transport Transport
	metrics   *Metrics

	mu      sync.RWMutex
	token   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a Client.
//
// Example:
//
//	client := bible.NewClient(
//	    bible.WithUserToken(os.Getenv("BIBLE_USER_TOKEN")),
//	    bible.WithRetryPolicy(bible.AggressiveRetryPolicy()),
//	    bible.WithCircuitBreaker(),
//	)
func NewClient(opts ...ClientOption) *Client {
	config := DefaultClientConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := config.Transport
	if transport == nil {
		transport = NewHTTPTransport(
			config.BaseURL,
			WithTransportRoundTripper(config.RoundTripper),
			WithTransportRateLimit(config.RateLimit, config.RateBurst),
		)
	}

	c := &Client{
		transport: transport,
		metrics:   config.Metrics,
		token:     config.UserToken,
		timeout:   config.Timeout,
		logger:    config.Logger,
	}

	var next Executor[*Request, *Response] = ExecutorFunc[*Request, *Response](c.attempt)
	if config.CircuitBreaker != nil {
		cb := *config.CircuitBreaker
		if cb.Logger == nil {
			cb.Logger = config.Logger
		}
		c.breaker = NewCircuitBreakerWrapper(next, &cb)
		next = c.breaker
	}

	c.retrier = NewRetryWrapper(next, config.RetryPolicy, config.ErrorClassifier, config.Logger)

	return c
}

// attempt performs one transport call and turns a non-200 response into a
// StatusCodeError.
func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.transport.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(resp)
	}
	return resp, nil
}

// Get fetches path and returns the response body, which is guaranteed to be
// valid JSON. Failures are *NetworkError or *APIResponseError.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	c.mu.RLock()
	req := &Request{Path: path, Token: c.token, Timeout: c.timeout}
	logger := c.logger
	c.mu.RUnlock()

	requestID := uuid.NewString()
	start := time.Now()

	resp, attempts, err := c.retrier.Do(ctx, req, "path", path, "request_id", requestID)
	if err != nil {
		c.metrics.observeRequest(OutcomeNetworkError, attempts, time.Since(start))
		netErr := &NetworkError{Path: path, Attempts: attempts, Err: err}
		var statusErr *StatusCodeError
		if errors.As(err, &statusErr) {
			netErr.StatusCode = statusErr.Code
			netErr.Body = statusErr.Body
		}
		return nil, netErr
	}

	var body json.RawMessage
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		c.metrics.observeRequest(OutcomeAPIError, attempts, time.Since(start))
		logger.Error("api response is not valid json",
			"path", path,
			"request_id", requestID,
			"error", err)
		return nil, &APIResponseError{Path: path, Body: resp.Body, Err: err}
	}

	c.metrics.observeRequest(OutcomeSuccess, attempts, time.Since(start))
	return body, nil
}

// SetTimeout changes the per-attempt timeout. The HTTP client is rebuilt on
// the next request.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeout
}

// SetUserToken changes the bearer token. An empty token sends no
// Authorization header.
func (c *Client) SetUserToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetRetryPolicy replaces the retry policy.
func (c *Client) SetRetryPolicy(policy RetryPolicy) {
	c.retrier.SetPolicy(policy)
}

// RetryPolicy returns the current retry policy.
func (c *Client) RetryPolicy() RetryPolicy {
	return c.retrier.Policy()
}

// SetLogger replaces the logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
	c.retrier.SetLogger(logger)
}

// RetryStats returns a snapshot of the retry statistics.
func (c *Client) RetryStats() RetryStats {
	return c.retrier.GetRetryStats()
}

// Health reports the circuit breaker state and retry statistics. Without a
// circuit breaker the client is always healthy.
func (c *Client) Health() HealthStatus {
	health := HealthStatus{Healthy: true, Status: "ok"}
	if c.breaker != nil {
		health = c.breaker.GetHealth()
	}
	health.Retry = c.RetryStats()
	return health
}

// Close releases idle connections of the default HTTP transport.
func (c *Client) Close() error {
	if t, ok := c.transport.(*HTTPTransport); ok {
		t.Close()
	}
	return nil
}
