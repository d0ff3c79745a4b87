package bible

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrInvalidChapter = errors.New("invalid chapter")
	ErrInvalidVerse   = errors.New("invalid verse")
	ErrInvalidBook    = errors.New("invalid book")
	ErrNetwork        = errors.New("network error")
	ErrAPIResponse    = errors.New("invalid api response")
)

// InvalidChapterError reports a chapter number below 1.
type InvalidChapterError struct {
	Chapter int
}

func (e *InvalidChapterError) Error() string {
	return fmt.Sprintf("invalid chapter %d: must be a positive integer", e.Chapter)
}

func (e *InvalidChapterError) Is(target error) bool { return target == ErrInvalidChapter }

// InvalidVerseError reports a verse number below 1.
type InvalidVerseError struct {
	Verse int
}

func (e *InvalidVerseError) Error() string {
	return fmt.Sprintf("invalid verse %d: must be a positive integer", e.Verse)
}

func (e *InvalidVerseError) Is(target error) bool { return target == ErrInvalidVerse }

// InvalidBookError reports a book key the API does not know.
type InvalidBookError struct {
	Book string
}

func (e *InvalidBookError) Error() string {
	return fmt.Sprintf("invalid book %q", e.Book)
}

func (e *InvalidBookError) Is(target error) bool { return target == ErrInvalidBook }

// NetworkError is returned when a request could not be completed: the
// connection failed, a non-success status came back, or retries ran out.
type NetworkError struct {
	// Path is the API path that was requested.
	Path string

	// StatusCode is the last HTTP status seen, or 0 if none was received.
	StatusCode int

	// Body is the last response body seen, if any.
	Body []byte

	// Attempts is the number of transport invocations made.
	Attempts int

	// Err is the last underlying failure.
	Err error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s failed after %d attempt(s): status %d: %v", e.Path, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s failed after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// APIResponseError is returned when a successful response could not be
// decoded or does not have the expected shape. It is never retried.
type APIResponseError struct {
	Path string
	Body []byte
	Err  error
}

func (e *APIResponseError) Error() string {
	return fmt.Sprintf("invalid response for %s: %v", e.Path, e.Err)
}

func (e *APIResponseError) Unwrap() error { return e.Err }

func (e *APIResponseError) Is(target error) bool { return target == ErrAPIResponse }

// ErrorClassifier determines whether an error should trigger a retry.
type ErrorClassifier interface {
	// IsRetryable returns true if the error represents a transient failure
	// that should be retried.
	IsRetryable(err error) bool
}

// CircuitBreakerErrorClassifier determines whether an error should trip the circuit breaker.
type CircuitBreakerErrorClassifier interface {
	// ShouldTripCircuit returns true if the error represents a failure serious enough
	// to open the circuit breaker and stop requests temporarily.
	ShouldTripCircuit(err error) bool
}

// HTTPStatusClassifier classifies errors by the HTTP status they carry.
// Errors without a status are connection-level failures and are retryable.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should trigger retries.
	// If nil, every status >= 500 and 429 are retryable.
	RetryableStatuses []int

	// CircuitTripStatuses lists HTTP status codes that should trip the circuit breaker.
	// Defaults to 401, 403 and every status >= 500 if nil.
	CircuitTripStatuses []int
}

// HTTPError represents an error with an associated HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// NewHTTPStatusClassifier creates a classifier with the default status rules.
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{}
}

// IsRetryable implements ErrorClassifier.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A canceled caller context ends the request; a per-attempt deadline
	// is a connection timeout and is retried.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// An open breaker answers instantly; hammering it wastes the budget.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var apiErr *APIResponseError
	if errors.As(err, &apiErr) {
		return false
	}

	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return true
	}
	if pkgerrors.IsTimeout(err) {
		return true
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	if c.RetryableStatuses != nil {
		return containsStatus(c.RetryableStatuses, statusCode)
	}
	return statusCode >= http.StatusInternalServerError || statusCode == http.StatusTooManyRequests
}

// ShouldTripCircuit implements CircuitBreakerErrorClassifier.
func (c *HTTPStatusClassifier) ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	// Rate limits and caller cancellation say nothing about upstream health.
	if errors.Is(err, pkgerrors.ErrRateLimited) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIResponseError
	if errors.As(err, &apiErr) {
		return false
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	if c.CircuitTripStatuses != nil {
		return containsStatus(c.CircuitTripStatuses, statusCode)
	}
	return statusCode == http.StatusUnauthorized ||
		statusCode == http.StatusForbidden ||
		statusCode >= http.StatusInternalServerError
}

// extractStatusCode returns the HTTP status carried by err, or 0.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DefaultErrorClassifier retries connection failures, timeouts, 429 and 5xx.
func DefaultErrorClassifier() ErrorClassifier {
	return NewHTTPStatusClassifier()
}

// DefaultCircuitBreakerErrorClassifier trips on connection failures,
// authentication errors and 5xx, but not on rate limits.
func DefaultCircuitBreakerErrorClassifier() CircuitBreakerErrorClassifier {
	return NewHTTPStatusClassifier()
}

// StatusCodeError carries a non-success HTTP response through the pipeline.
type StatusCodeError struct {
	Err  error
	Code int
	Body []byte
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError wraps err with an HTTP status code.
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}

// statusError builds the error for a non-200 response. A 429 also matches
// jp-go-errors' ErrRateLimited.
func statusError(resp *Response) error {
	cause := fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if resp.StatusCode == http.StatusTooManyRequests {
		cause = fmt.Errorf("%w: %w", pkgerrors.ErrRateLimited, cause)
	}
	return &StatusCodeError{
		Code: resp.StatusCode,
		Body: resp.Body,
		Err:  cause,
	}
}
