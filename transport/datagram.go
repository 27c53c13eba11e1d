package transport

import (
	"context"
	"fmt"
	"net"
)

// Endpoint is a connectionless local endpoint that can send one datagram at a time.
// *net.UDPConn satisfies it.
type Endpoint interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
	LocalAddr() net.Addr
	Close() error
}

// ListenFunc acquires a fresh Endpoint. The gateway calls it once per request.
type ListenFunc func(ctx context.Context) (Endpoint, error)

// ListenEphemeral binds a UDP endpoint on localAddr. An empty localAddr or a zero
// port lets the kernel pick an ephemeral port.
func ListenEphemeral(ctx context.Context, localAddr string) (Endpoint, error) {
	if localAddr == "" {
		localAddr = ":0"
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", localAddr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// EphemeralListener returns a ListenFunc bound to localAddr.
func EphemeralListener(localAddr string) ListenFunc {
	return func(ctx context.Context) (Endpoint, error) {
		return ListenEphemeral(ctx, localAddr)
	}
}

// SendDatagram writes frame to dest in a single call. A partial write is an error:
// the peer must never see a truncated frame.
func SendDatagram(ep Endpoint, frame []byte, dest net.Addr) error {
	n, err := ep.WriteTo(frame, dest)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	return nil
}
