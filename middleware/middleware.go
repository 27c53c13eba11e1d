// Package middleware wraps the create-session handler with cross-cutting behavior.
//
// Both inbound transports build the same chain, so rate limiting, timeouts,
// logging and metrics behave identically over HTTP and RPC.
package middleware

import (
	"context"
	"errors"

	"session-gateway/message"
)

// HandlerFunc handles one create-session call. A non-nil error means the request
// itself failed (rejected, timed out, endpoint unavailable); an outbound send
// failure is reported inside the response instead.
type HandlerFunc func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error)

type Middleware func(next HandlerFunc) HandlerFunc

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrTimeout     = errors.New("request timed out")
)

// Chain composes middlewares so that Chain(A, B)(h) runs A, then B, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type transportKey struct{}

// WithTransport labels ctx with the inbound transport name ("http", "rpc").
func WithTransport(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, transportKey{}, name)
}

// TransportFrom returns the transport label, or "unknown".
func TransportFrom(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey{}).(string); ok {
		return v
	}
	return "unknown"
}
