package loadbalance

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"session-gateway/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps a key onto a crc32 ring of virtual nodes, so a
// given session id goes to the same gateway while the instance set is stable.
// The ring is rebuilt whenever Pick sees a different set of addresses.
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.RWMutex
	sig   string   // sorted addrs joined by ","; identifies the current ring
	ring  []uint32 // sorted virtual node hashes
	nodes map[uint32]registry.ServiceInstance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: defaultReplicas}
}

func signature(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, ",")
}

func (b *ConsistentHashBalancer) rebuild(sig string, instances []registry.ServiceInstance) {
	ring := make([]uint32, 0, len(instances)*b.replicas)
	nodes := make(map[uint32]registry.ServiceInstance, len(instances)*b.replicas)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(inst.Addr + "#" + strconv.Itoa(i)))
			if _, taken := nodes[h]; taken {
				continue
			}
			ring = append(ring, h)
			nodes[h] = inst
		}
	}
	slices.Sort(ring)
	b.sig, b.ring, b.nodes = sig, ring, nodes
}

// Pick returns the first virtual node clockwise from hash(key).
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.ServiceInstance) (registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return registry.ServiceInstance{}, ErrNoInstances
	}

	sig := signature(instances)
	b.mu.RLock()
	if b.sig != sig {
		b.mu.RUnlock()
		b.mu.Lock()
		if b.sig != sig {
			b.rebuild(sig, instances)
		}
		b.mu.Unlock()
		b.mu.RLock()
	}
	defer b.mu.RUnlock()

	h := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= h })
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
