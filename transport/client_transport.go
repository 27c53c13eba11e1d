// Package transport moves bytes for the gateway.
//
// Outbound, it acquires per-request UDP endpoints and writes session frames
// (datagram.go). Inbound-side callers use ClientTransport: a multiplexed
// connection to a gateway's RPC listener, where every request carries a
// sequence number and a background reader routes each response back to the
// goroutine waiting on that number.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ one TCP conn ──→ gateway
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop: ←── response(seq=2) → pending[2] → goroutine-2 wakes up
package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"session-gateway/codec"
	"session-gateway/message"
	"session-gateway/protocol"
)

// ErrTransportClosed is delivered to pending calls when the connection ends.
var ErrTransportClosed = errors.New("transport: connection closed")

// DefaultHeartbeat is the idle heartbeat interval used by NewClientTransport.
const DefaultHeartbeat = 30 * time.Second

type ClientTransport struct {
	conn  net.Conn
	codec codec.Codec

	sending sync.Mutex // serializes seq assignment and frame writes
	seq     uint32

	pending sync.Map // uint32 → chan *message.Envelope

	closeOnce sync.Once
	done      chan struct{}
	err       error // set before done is closed
}

// NewClientTransport wraps conn and starts the receive loop and a heartbeat
// every interval (DefaultHeartbeat when zero).
func NewClientTransport(conn net.Conn, ct codec.CodecType, interval time.Duration) (*ClientTransport, error) {
	c, err := codec.GetCodec(ct)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultHeartbeat
	}
	t := &ClientTransport{
		conn:  conn,
		codec: c,
		done:  make(chan struct{}),
	}
	go t.recvLoop()
	go t.heartbeatLoop(interval)
	return t, nil
}

// Send writes env and returns its sequence number and a channel that receives
// the matching response. The channel is buffered and receives exactly one
// envelope; if the connection ends first, that envelope carries the connection
// error. A caller that stops waiting should Cancel the sequence number.
func (t *ClientTransport) Send(env *message.Envelope) (uint32, <-chan *message.Envelope, error) {
	body, err := t.codec.Encode(env)
	if err != nil {
		return 0, nil, err
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	select {
	case <-t.done:
		return 0, nil, t.err
	default:
	}

	t.seq++
	seq := t.seq
	ch := make(chan *message.Envelope, 1)
	// registered before the write so recvLoop cannot miss a fast reply
	t.pending.Store(seq, ch)

	header := protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}
	if err := protocol.Encode(t.conn, &header, body); err != nil {
		t.pending.Delete(seq)
		return 0, nil, err
	}
	return seq, ch, nil
}

// Cancel forgets the call with sequence number seq. A reply that arrives
// later is dropped.
func (t *ClientTransport) Cancel(seq uint32) {
	t.pending.Delete(seq)
}

// Done is closed once the connection has ended.
func (t *ClientTransport) Done() <-chan struct{} {
	return t.done
}

// Close closes the connection and fails every pending call.
func (t *ClientTransport) Close() error {
	err := t.conn.Close()
	t.fail(ErrTransportClosed)
	return err
}

func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.fail(err)
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		resp := &message.Envelope{}
		c, err := codec.GetCodec(codec.CodecType(header.CodecType))
		if err == nil {
			err = c.Decode(body, resp)
		}
		if err != nil {
			resp = &message.Envelope{Error: err.Error()}
		}
		if ch, ok := t.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan *message.Envelope) <- resp
		}
	}
}

// fail ends the transport once, waking every pending caller with err.
func (t *ClientTransport) fail(err error) {
	t.closeOnce.Do(func() {
		t.conn.Close()

		t.sending.Lock()
		t.err = err
		close(t.done)
		t.sending.Unlock()

		t.pending.Range(func(key, _ any) bool {
			if ch, ok := t.pending.LoadAndDelete(key); ok {
				ch.(chan *message.Envelope) <- &message.Envelope{Error: err.Error()}
			}
			return true
		})
	})
}

func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil)
		t.sending.Unlock()
		if err != nil {
			t.fail(err)
			return
		}
	}
}
