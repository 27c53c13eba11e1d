// Package gateway converts create-session requests into outbound UDP frames.
//
// Each call acquires its own ephemeral UDP endpoint, encodes the request with
// package frame, writes the frame once to the configured destination and
// closes the endpoint. Calls share no mutable state and run fully in parallel.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"

	"session-gateway/frame"
	"session-gateway/message"
	"session-gateway/metrics"
	"session-gateway/transport"
)

type Options struct {
	// Destination is the fixed UDP peer. Required.
	Destination *net.UDPAddr

	// Listen acquires the per-request endpoint. Defaults to an ephemeral port on ":0".
	Listen transport.ListenFunc

	// Strict rejects requests that would be truncated on the wire instead of
	// silently cutting them.
	Strict  bool
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Gateway struct {
	dest    *net.UDPAddr
	listen  transport.ListenFunc
	strict  bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(opts Options) (*Gateway, error) {
	if opts.Destination == nil {
		return nil, errors.New("gateway: destination is required")
	}
	g := &Gateway{
		dest:    opts.Destination,
		listen:  opts.Listen,
		strict:  opts.Strict,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if g.listen == nil {
		g.listen = transport.EphemeralListener(":0")
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g, nil
}

// Destination returns the configured peer.
func (g *Gateway) Destination() *net.UDPAddr {
	return g.dest
}

// CreateSession encodes req and sends it to the destination.
//
// A send failure yields an error response and a nil error. A non-nil error is
// returned only when the request could not be attempted: a *TransportInitError,
// or ErrInvalidRequest in strict mode.
func (g *Gateway) CreateSession(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
	if g.strict {
		if err := frame.Validate(req); err != nil {
			g.metrics.ObserveDatagram(metrics.OutcomeRejected, 0)
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	ep, err := g.listen(ctx)
	if err != nil {
		g.metrics.ObserveDatagram(metrics.OutcomeInitError, 0)
		return nil, &TransportInitError{Err: err}
	}
	defer ep.Close()

	buf := frame.Encode(req)

	if err := transport.SendDatagram(ep, buf, g.dest); err != nil {
		sendErr := &SendError{Dest: g.dest.String(), Err: err}
		g.metrics.ObserveDatagram(metrics.OutcomeSendError, 0)
		g.logger.Warn("datagram send failed",
			zap.String("destination", sendErr.Dest),
			zap.Uint32("session_id", req.SessionID),
			zap.Error(err))
		return message.Failure(sendErr.Error()), nil
	}

	g.metrics.ObserveDatagram(metrics.OutcomeSent, len(buf))
	if ce := g.logger.Check(zap.DebugLevel, "datagram sent"); ce != nil {
		ce.Write(
			zap.String("destination", g.dest.String()),
			zap.Stringer("local", ep.LocalAddr()),
			zap.Uint32("session_id", req.SessionID),
			zap.Int("bytes", len(buf)))
	}
	return message.Success(frame.Render(buf)), nil
}
