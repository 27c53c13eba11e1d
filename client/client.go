// Package client calls CreateSession on a fleet of gateways discovered
// through a registry.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"session-gateway/codec"
	"session-gateway/loadbalance"
	"session-gateway/message"
	"session-gateway/registry"
	"session-gateway/transport"
)

const (
	DefaultService     = "session-gateway"
	DefaultPoolSize    = 2
	DefaultDialTimeout = 3 * time.Second
)

// RemoteError is an error reported by the gateway rather than the connection.
type RemoteError struct {
	Method string
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Msg)
}

type Options struct {
	Registry registry.Registry
	Balancer loadbalance.Balancer // round robin when nil
	Service  string               // registry service name, DefaultService when empty
	Codec    codec.CodecType
	PoolSize int // connections per gateway, DefaultPoolSize when zero

	DialTimeout time.Duration
}

type Client struct {
	opts Options

	mu    sync.Mutex
	pools map[string]*pool // gateway addr → connections
}

// pool holds a fixed number of multiplexed connections to one gateway.
// Slots are used in turn and redialed once their connection has ended.
type pool struct {
	mu    sync.Mutex
	slots []*transport.ClientTransport
	next  int
}

func NewClient(opts Options) (*Client, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("client: registry is required")
	}
	if _, err := codec.GetCodec(opts.Codec); err != nil {
		return nil, err
	}
	if opts.Balancer == nil {
		opts.Balancer = &loadbalance.RoundRobinBalancer{}
	}
	if opts.Service == "" {
		opts.Service = DefaultService
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	return &Client{opts: opts, pools: make(map[string]*pool)}, nil
}

// CreateSession sends req to one gateway. The balancer key is the session id,
// so a consistent-hash balancer routes a session to the same gateway each time.
func (c *Client) CreateSession(ctx context.Context, req *message.SessionRequest) (*message.SessionResponse, error) {
	instances, err := c.opts.Registry.Discover(ctx, c.opts.Service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", c.opts.Service, err)
	}
	inst, err := c.opts.Balancer.Pick(strconv.FormatUint(uint64(req.SessionID), 10), instances)
	if err != nil {
		return nil, err
	}

	tr, err := c.transport(ctx, inst.Addr)
	if err != nil {
		return nil, err
	}

	// Gateways reject a null player_ids; a nil slice means no players.
	if req.PlayerIDs == nil {
		withEmpty := *req
		withEmpty.PlayerIDs = []string{}
		req = &withEmpty
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	seq, ch, err := tr.Send(&message.Envelope{Method: message.MethodCreateSession, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("send to %s: %w", inst.Addr, err)
	}

	var reply *message.Envelope
	select {
	case reply = <-ch:
	case <-ctx.Done():
		tr.Cancel(seq)
		return nil, ctx.Err()
	}
	if reply.Error != "" {
		return nil, &RemoteError{Method: message.MethodCreateSession, Msg: reply.Error}
	}

	var resp message.SessionResponse
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", inst.Addr, err)
	}
	return &resp, nil
}

func (c *Client) transport(ctx context.Context, addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	p, ok := c.pools[addr]
	if !ok {
		p = &pool{slots: make([]*transport.ClientTransport, c.opts.PoolSize)}
		c.pools[addr] = p
	}
	c.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.next
	p.next = (p.next + 1) % len(p.slots)
	if tr := p.slots[i]; tr != nil && alive(tr) {
		return tr, nil
	}

	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", addr, err)
	}
	tr, err := transport.NewClientTransport(conn, c.opts.Codec, 0)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.slots[i] = tr
	return tr, nil
}

func alive(tr *transport.ClientTransport) bool {
	select {
	case <-tr.Done():
		return false
	default:
		return true
	}
}

// Close closes every pooled connection. Calls in flight fail with
// transport.ErrTransportClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, p := range c.pools {
		p.mu.Lock()
		for _, tr := range p.slots {
			if tr != nil {
				tr.Close()
			}
		}
		p.mu.Unlock()
		delete(c.pools, addr)
	}
	return nil
}
