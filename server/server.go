// Package server exposes the gateway handler over the network.
//
// RPCServer speaks the framed protocol from package protocol:
//
//	Accept conn → serveConn (one goroutine reads frames sequentially)
//	  → for each request: go handleRequest (requests on one conn run in parallel)
//	    → codec.Decode → method lookup → middleware chain → codec.Encode → write response
//
// The HTTP API lives in http.go.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"session-gateway/codec"
	"session-gateway/message"
	"session-gateway/middleware"
	"session-gateway/protocol"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("rpc: server closed")

type RPCServer struct {
	logger      *zap.Logger
	methods     map[string]middleware.HandlerFunc // raw handlers, by method name
	middlewares []middleware.Middleware
	chained     map[string]middleware.HandlerFunc // built once in Serve

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	inflight sync.WaitGroup
	shutdown atomic.Bool
}

func NewRPCServer(logger *zap.Logger) *RPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCServer{
		logger:  logger,
		methods: make(map[string]middleware.HandlerFunc),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Handle registers h for method, e.g. message.MethodCreateSession. Call before Serve.
func (s *RPCServer) Handle(method string, h middleware.HandlerFunc) {
	s.methods[method] = h
}

// Use appends a middleware. Middlewares run in the order they were added.
func (s *RPCServer) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *RPCServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a non-nil
// error; after Shutdown the error is ErrServerClosed.
func (s *RPCServer) Serve(ln net.Listener) error {
	chain := middleware.Chain(s.middlewares...)
	chained := make(map[string]middleware.HandlerFunc, len(s.methods))
	for name, h := range s.methods {
		chained[name] = chain(h)
	}

	s.mu.Lock()
	if s.shutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.chained = chained
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("rpc server listening", zap.Stringer("addr", ln.Addr()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return ErrServerClosed
			}
			return err
		}
		if !s.trackConn(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go s.serveConn(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *RPCServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *RPCServer) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *RPCServer) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// serveConn reads frames sequentially and dispatches each request to its own
// goroutine. writeMu keeps concurrent responses from interleaving on the stream.
//
// Once Shutdown has begun, serveConn stops reading and leaves conn open so
// in-flight replies can still be written; Shutdown closes it after draining.
func (s *RPCServer) serveConn(conn net.Conn) {
	defer func() {
		if !s.shutdown.Load() {
			conn.Close()
			s.untrackConn(conn)
		}
	}()

	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !s.shutdown.Load() && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("rpc connection closed", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
			}
			return
		}
		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeResponse:
			s.logger.Warn("rpc client sent a response frame", zap.Stringer("remote", conn.RemoteAddr()))
			continue
		}

		if !s.beginRequest() {
			return
		}
		go func() {
			defer s.inflight.Done()
			s.handleRequest(header, body, conn, writeMu)
		}()
	}
}

// beginRequest registers an in-flight request unless Shutdown has begun.
// Holding mu orders every inflight.Add before Shutdown's inflight.Wait.
func (s *RPCServer) beginRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.inflight.Add(1)
	return true
}

func (s *RPCServer) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	c, err := codec.GetCodec(codec.CodecType(header.CodecType))
	if err != nil {
		s.logger.Warn("rpc request with unknown codec", zap.Uint8("codec", header.CodecType))
		return
	}

	reply := s.dispatch(c, body)

	out, err := c.Encode(reply)
	if err != nil {
		s.logger.Error("rpc encode reply failed", zap.Error(err))
		return
	}
	replyHeader := protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq,
		BodyLen:   uint32(len(out)),
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &replyHeader, out); err != nil {
		s.logger.Debug("rpc write reply failed", zap.Uint32("seq", header.Seq), zap.Error(err))
	}
}

func (s *RPCServer) dispatch(c codec.Codec, body []byte) *message.Envelope {
	var env message.Envelope
	if err := c.Decode(body, &env); err != nil {
		return &message.Envelope{Error: fmt.Sprintf("decode envelope: %v", err)}
	}

	h, ok := s.chained[env.Method]
	if !ok {
		return &message.Envelope{Method: env.Method, Error: fmt.Sprintf("unknown method %q", env.Method)}
	}

	req, err := decodeSessionRequest(env.Payload)
	if err != nil {
		return &message.Envelope{Method: env.Method, Error: fmt.Sprintf("decode request: %v", err)}
	}

	resp, err := h(middleware.WithTransport(context.Background(), "rpc"), req)
	if err != nil {
		return &message.Envelope{Method: env.Method, Error: err.Error()}
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return &message.Envelope{Method: env.Method, Error: fmt.Sprintf("encode response: %v", err)}
	}
	return &message.Envelope{Method: env.Method, Payload: payload}
}

// Shutdown stops accepting connections, waits for in-flight requests (bounded by
// ctx), then closes every open connection.
func (s *RPCServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("rpc shutdown: %w", ctx.Err())
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return err
}
