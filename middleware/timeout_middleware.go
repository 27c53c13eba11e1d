package middleware

import (
	"context"
	"time"

	"session-gateway/message"
)

type result struct {
	resp *message.SessionResponse
	err  error
}

// Timeout stops waiting for next after d and returns ErrTimeout. The inner call
// keeps running to completion in its own goroutine; an in-flight datagram send is
// never interrupted.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				resp, err := next(ctx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				return r.resp, r.err
			case <-ctx.Done():
				return nil, ErrTimeout
			}
		}
	}
}
