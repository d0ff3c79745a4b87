// Package bible provides a resilient client for a remote scripture API.
// Requests go through a retry loop driven by a RetryPolicy, an optional
// circuit breaker and an HTTP transport; Service layers validation, caching
// and typed DTOs on top. Errors integrate with jp-go-errors for timeout,
// rate-limit and circuit-breaker kinds.
package bible

import (
	"context"
)

// Executor defines a generic request/response step. Each layer of the client
// pipeline (transport, circuit breaker, retry) implements it and wraps the
// next one.
//
// Example:
//
//	type stubTransport struct{}
//
//	func (stubTransport) Execute(ctx context.Context, req *bible.Request) (*bible.Response, error) {
//	    return &bible.Response{StatusCode: 200, Body: []byte(`[]`)}, nil
//	}
//
//	client := bible.NewClient(bible.WithTransport(stubTransport{}))
type Executor[Req, Resp any] interface {
	// Execute performs a request and returns a response or error.
	// The context controls cancellation.
	Execute(ctx context.Context, req Req) (Resp, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Execute calls f(ctx, req).
func (f ExecutorFunc[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}
