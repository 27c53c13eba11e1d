package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-gateway/codec"
	"session-gateway/message"
	"session-gateway/middleware"
	"session-gateway/protocol"
)

// stubHandler echoes the request back inside the response text.
func stubHandler(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
	if req.SessionID == 0 {
		return nil, errors.New("session id required")
	}
	data, _ := json.Marshal(req)
	return message.Success(middleware.TransportFrom(ctx) + ":" + string(data)), nil
}

func startRPC(t *testing.T, s *RPCServer) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		assert.ErrorIs(t, <-served, ErrServerClosed)
	})
	return ln.Addr()
}

// call performs one raw RPC exchange on conn.
func call(t *testing.T, conn net.Conn, ct codec.CodecType, seq uint32, env *message.Envelope) *message.Envelope {
	t.Helper()
	c, err := codec.GetCodec(ct)
	require.NoError(t, err)

	body, err := c.Encode(env)
	require.NoError(t, err)
	header := protocol.Header{CodecType: byte(ct), MsgType: protocol.MsgTypeRequest, Seq: seq, BodyLen: uint32(len(body))}
	require.NoError(t, protocol.Encode(conn, &header, body))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	replyHeader, replyBody, err := protocol.Decode(conn)
	require.NoError(t, err)
	assert.Equal(t, seq, replyHeader.Seq)
	assert.Equal(t, protocol.MsgTypeResponse, replyHeader.MsgType)
	assert.Equal(t, byte(ct), replyHeader.CodecType)

	var reply message.Envelope
	require.NoError(t, c.Decode(replyBody, &reply))
	return &reply
}

func requestEnvelope(t *testing.T, req *message.SessionRequest) *message.Envelope {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return &message.Envelope{Method: message.MethodCreateSession, Payload: payload}
}

func TestRPCServerCreateSession(t *testing.T) {
	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, stubHandler)
	addr := startRPC(t, s)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	for i, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeBinary, codec.CodecTypeCBOR} {
		reply := call(t, conn, ct, uint32(100+i), requestEnvelope(t, &message.SessionRequest{Header: 1, SessionID: 7, PlayerIDs: []string{"ab"}}))
		require.Empty(t, reply.Error, ct.String())

		var resp message.SessionResponse
		require.NoError(t, json.Unmarshal(reply.Payload, &resp))
		assert.Equal(t, message.StatusSuccess, resp.Status)
		assert.Contains(t, resp.Response, `rpc:{"header":1`)
	}
}

func TestRPCServerErrors(t *testing.T) {
	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, stubHandler)
	addr := startRPC(t, s)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	reply := call(t, conn, codec.CodecTypeJSON, 1, &message.Envelope{Method: "Gateway.Nope"})
	assert.Contains(t, reply.Error, "unknown method")

	reply = call(t, conn, codec.CodecTypeJSON, 2, &message.Envelope{Method: message.MethodCreateSession, Payload: []byte("{")})
	assert.Contains(t, reply.Error, "decode request")

	reply = call(t, conn, codec.CodecTypeJSON, 3, requestEnvelope(t, &message.SessionRequest{PlayerIDs: []string{}}))
	assert.Equal(t, "session id required", reply.Error)
}

func TestRPCServerAppliesMiddleware(t *testing.T) {
	s := NewRPCServer(nil)
	s.Use(middleware.RateLimit(0.001, 1))
	s.Handle(message.MethodCreateSession, stubHandler)
	addr := startRPC(t, s)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	env := requestEnvelope(t, &message.SessionRequest{SessionID: 1, PlayerIDs: []string{}})
	assert.Empty(t, call(t, conn, codec.CodecTypeJSON, 1, env).Error)
	assert.Equal(t, middleware.ErrRateLimited.Error(), call(t, conn, codec.CodecTypeJSON, 2, env).Error)
}

func TestRPCServerIgnoresHeartbeat(t *testing.T) {
	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, stubHandler)
	addr := startRPC(t, s)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.Encode(conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil))
	reply := call(t, conn, codec.CodecTypeJSON, 9, requestEnvelope(t, &message.SessionRequest{SessionID: 3, PlayerIDs: []string{}}))
	assert.Empty(t, reply.Error)
}

func TestRPCServerShutdownWaitsForInflight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
		close(started)
		<-release
		return message.Success("[]"), nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	body, err := codec.JSONCodec{}.Encode(requestEnvelope(t, &message.SessionRequest{SessionID: 1, PlayerIDs: []string{}}))
	require.NoError(t, err)
	require.NoError(t, protocol.Encode(conn, &protocol.Header{MsgType: protocol.MsgTypeRequest, Seq: 1, BodyLen: uint32(len(body))}, body))
	<-started

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownDone <- s.Shutdown(ctx)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("shutdown returned while a request was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-shutdownDone)
	assert.ErrorIs(t, <-served, ErrServerClosed)
}

func TestRPCServerShutdownTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})

	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
		close(started)
		<-block
		return message.Success("[]"), nil
	})
	addr := startRPC(t, s)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	body, err := codec.JSONCodec{}.Encode(requestEnvelope(t, &message.SessionRequest{SessionID: 1, PlayerIDs: []string{}}))
	require.NoError(t, err)
	require.NoError(t, protocol.Encode(conn, &protocol.Header{MsgType: protocol.MsgTypeRequest, Seq: 1, BodyLen: uint32(len(body))}, body))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
}

func TestRPCServerRejectsRequestsAfterShutdownBegins(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32

	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return message.Success("[]"), nil
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	send := func(seq uint32) {
		body, err := codec.JSONCodec{}.Encode(requestEnvelope(t, &message.SessionRequest{SessionID: seq, PlayerIDs: []string{}}))
		require.NoError(t, err)
		require.NoError(t, protocol.Encode(conn, &protocol.Header{MsgType: protocol.MsgTypeRequest, Seq: seq, BodyLen: uint32(len(body))}, body))
	}

	send(1)
	<-started

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownDone <- s.Shutdown(ctx)
	}()
	require.Eventually(t, s.shutdown.Load, time.Second, 5*time.Millisecond)

	send(2)
	time.Sleep(100 * time.Millisecond)
	close(release)
	require.NoError(t, <-shutdownDone)
	assert.ErrorIs(t, <-served, ErrServerClosed)
	assert.Equal(t, int32(1), calls.Load())

	// The request that was in flight still gets its reply.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	header, _, err := protocol.Decode(conn)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), header.Seq)
}

func TestRPCServerRejectsMissingFields(t *testing.T) {
	called := false
	s := NewRPCServer(nil)
	s.Handle(message.MethodCreateSession, func(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
		called = true
		return message.Success("[]"), nil
	})
	addr := startRPC(t, s)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	payloads := []string{
		`{}`,
		`{"header":1,"client_identifier":1,"player_ids":[]}`,
		`{"header":1,"client_identifier":1,"session_id":1,"player_ids":null}`,
		`{"header":1,"client_identifier":1,"session_id":1,"player_ids":[5]}`,
	}
	for i, p := range payloads {
		reply := call(t, conn, codec.CodecTypeJSON, uint32(i+1), &message.Envelope{Method: message.MethodCreateSession, Payload: []byte(p)})
		assert.Contains(t, reply.Error, "decode request", p)
	}
	assert.False(t, called)
}
