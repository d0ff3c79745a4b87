package bible

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/JohnPlummer/jp-go-errors"
	"golang.org/x/time/rate"
)

// Request is a single GET against the API.
type Request struct {
	// Path is relative to the transport's base URL, e.g. "verses/nvi/gn/1".
	Path string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds this attempt. Zero means no timeout.
	Timeout time.Duration
}

// Response is the raw outcome of a request. Non-200 statuses are responses,
// not errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 200, the only status the API answers
// lookups with.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Transport performs a single request with no retry.
type Transport = Executor[*Request, *Response]

// HTTPTransport is the net/http Transport. Only connection-level failures
// (DNS, refused connection, timeout) are returned as errors.
type HTTPTransport struct {
	baseURL      string
	roundTripper http.RoundTripper
	limiter      *rate.Limiter

	mu      sync.Mutex
	client  *http.Client
	timeout time.Duration
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithTransportRoundTripper sets the round tripper used by the http.Client.
func WithTransportRoundTripper(rt http.RoundTripper) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.roundTripper = rt
	}
}

// WithTransportRateLimit waits on a token bucket before each round trip.
func WithTransportRateLimit(limit rate.Limit, burst int) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if limit <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(limit, burst)
	}
}

// NewHTTPTransport creates a transport for baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Execute performs one GET request.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	url := t.baseURL + strings.TrimLeft(req.Path, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", req.Path, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	httpResp, err := t.httpClient(req.Timeout).Do(httpReq)
	if err != nil {
		var netErr net.Error
		if ctx.Err() == nil && errors.As(err, &netErr) && netErr.Timeout() {
			return nil, errors.Join(
				pkgerrors.NewTimeoutError("request timed out", "GET "+req.Path, req.Timeout),
				err,
			)
		}
		return nil, fmt.Errorf("GET %s: %w", req.Path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", req.Path, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// httpClient returns the client for timeout, rebuilding it when the timeout
// changed since the last request.
func (t *HTTPTransport) httpClient(timeout time.Duration) *http.Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil && t.timeout == timeout {
		return t.client
	}
	if t.client != nil {
		t.client.CloseIdleConnections()
	}

	rt := t.roundTripper
	if rt == nil {
		rt = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	t.client = &http.Client{Timeout: timeout, Transport: rt}
	t.timeout = timeout
	return t.client
}

// Close releases idle connections.
func (t *HTTPTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
}
