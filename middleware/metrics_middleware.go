package middleware

import (
	"context"
	"time"

	"session-gateway/message"
	"session-gateway/metrics"
)

// Metrics counts requests per transport and status. Handler errors are recorded
// with status "failed" to keep them apart from error responses.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			status := "failed"
			if err == nil && resp != nil {
				status = resp.Status
			}
			m.ObserveRequest(TransportFrom(ctx), status, time.Since(start))
			return resp, err
		}
	}
}
