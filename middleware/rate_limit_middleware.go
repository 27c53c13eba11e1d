package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"session-gateway/message"
)

// RateLimit rejects requests beyond r per second (token bucket, burst capacity)
// with ErrRateLimited. The limiter is shared by every request through the chain.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
