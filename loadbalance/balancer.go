// Package loadbalance picks which gateway instance a client call goes to.
//
//   - RoundRobin:     instances of equal capacity
//   - WeightedRandom: instances registered with different weights
//   - ConsistentHash: one session id keeps landing on the same gateway
package loadbalance

import (
	"errors"
	"fmt"
	"strings"

	"session-gateway/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is called once per client call and must be safe for concurrent use.
// key identifies the call for affinity strategies; others ignore it.
type Balancer interface {
	Pick(key string, instances []registry.ServiceInstance) (registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer registered under name (case-insensitive):
// "round_robin", "weighted_random" or "consistent_hash".
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "", "round_robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "weightedrandom":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash", "consistenthash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
