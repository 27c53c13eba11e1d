package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"session-gateway/message"
)

// Logging writes one line per request: debug on success, warn when the response
// carries an error status, error when the handler failed.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("transport", TransportFrom(ctx)),
				zap.Uint32("session_id", req.SessionID),
				zap.Uint64("client_identifier", req.ClientIdentifier),
				zap.Int("players", len(req.PlayerIDs)),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Error("create session failed", append(fields, zap.Error(err))...)
			case !resp.OK():
				if resp != nil {
					fields = append(fields, zap.String("response", resp.Response))
				}
				logger.Warn("create session returned error", fields...)
			default:
				logger.Debug("create session", fields...)
			}
			return resp, err
		}
	}
}
