package client

import (
	"context"
	"net"
	"testing"
	"time"

	"session-gateway/gateway"
	"session-gateway/message"
	"session-gateway/registry"
	"session-gateway/server"
	"session-gateway/transport"
)

// setupBench starts a gateway behind an RPC server and a UDP sink that drains
// every datagram, and returns a client pointed at it.
func setupBench(b *testing.B) *Client {
	b.Helper()
	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		b.Fatal(err)
	}
	go func() {
		buf := make([]byte, 64*1024)
		for {
			if _, _, err := sink.ReadFromUDP(buf); err != nil {
				return
			}
		}
	}()

	g, err := gateway.New(gateway.Options{
		Destination: sink.LocalAddr().(*net.UDPAddr),
		Listen:      transport.EphemeralListener("127.0.0.1:0"),
	})
	if err != nil {
		b.Fatal(err)
	}
	svr := server.NewRPCServer(nil)
	svr.Handle(message.MethodCreateSession, g.CreateSession)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	go svr.Serve(ln)

	cli, err := NewClient(Options{
		Registry: registry.Static(DefaultService, registry.ServiceInstance{Addr: ln.Addr().String()}),
		PoolSize: 8,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		cli.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		svr.Shutdown(ctx)
		sink.Close()
	})
	return cli
}

func benchRequest() *message.SessionRequest {
	return &message.SessionRequest{Header: 1, ClientIdentifier: 42, SessionID: 7, PlayerIDs: []string{"alice", "bob", "carol"}}
}

func BenchmarkSerialCall(b *testing.B) {
	cli := setupBench(b)
	req := benchRequest()
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := cli.CreateSession(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

// Concurrent callers share multiplexed connections.
func BenchmarkConcurrentCall(b *testing.B) {
	cli := setupBench(b)
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		req := benchRequest()
		for pb.Next() {
			if _, err := cli.CreateSession(ctx, req); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
