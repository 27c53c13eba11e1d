// Package registry publishes gateway instances so callers can find them.
//
// Only the gateways themselves are registered; the outbound UDP peer is fixed
// configuration and never discovered.
package registry

import "context"

type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight,omitempty"` // for weighted load balancing, 0 counts as 1
	Version string `json:"version,omitempty"`
	Name    string `json:"name,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, service string, instance ServiceInstance, ttlSeconds int64) error
	Deregister(ctx context.Context, service string, addr string) error
	Discover(ctx context.Context, service string) ([]ServiceInstance, error)
	Watch(ctx context.Context, service string) <-chan []ServiceInstance
	Close() error
}
