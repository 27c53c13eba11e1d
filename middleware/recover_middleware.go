package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"session-gateway/message"
)

// Recover turns a panic in next into an error so one bad request cannot take
// down the RPC connection it arrived on.
func Recover(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.SessionRequest) (resp *message.SessionResponse, err error) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("create session panicked", zap.Any("panic", p), zap.Stack("stack"))
					resp, err = nil, fmt.Errorf("internal error: %v", p)
				}
			}()
			return next(ctx, req)
		}
	}
}
