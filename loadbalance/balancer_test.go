package loadbalance

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-gateway/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":9001", Weight: 10},
	{Addr: ":9002", Weight: 5},
	{Addr: ":9003", Weight: 10},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var got []string
	for i := 0; i < 4; i++ {
		inst, err := b.Pick("", testInstances)
		require.NoError(t, err)
		got = append(got, inst.Addr)
	}
	assert.Equal(t, []string{":9001", ":9002", ":9003", ":9001"}, got)
}

func TestRoundRobinConcurrent(t *testing.T) {
	b := &RoundRobinBalancer{}
	counts := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := b.Pick("", testInstances)
			assert.NoError(t, err)
			mu.Lock()
			counts[inst.Addr]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, map[string]int{":9001": 100, ":9002": 100, ":9003": 100}, counts)
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		_, err := b.Pick("k", nil)
		assert.ErrorIs(t, err, ErrNoInstances, b.Name())
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick("", testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// 10:5:10
	ratio := float64(counts[":9001"]) / float64(counts[":9002"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	instances := []registry.ServiceInstance{{Addr: "a"}, {Addr: "b"}}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		inst, err := b.Pick("", instances)
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.Len(t, seen, 2)
}

func TestConsistentHashAffinity(t *testing.T) {
	b := NewConsistentHashBalancer()

	first, err := b.Pick("42", testInstances)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		inst, err := b.Pick("42", testInstances)
		require.NoError(t, err)
		assert.Equal(t, first.Addr, inst.Addr)
	}

	// Order of the discovered list does not move keys.
	reversed := []registry.ServiceInstance{testInstances[2], testInstances[1], testInstances[0]}
	inst, err := b.Pick("42", reversed)
	require.NoError(t, err)
	assert.Equal(t, first.Addr, inst.Addr)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.Pick(fmt.Sprint(i), testInstances)
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)
}

func TestConsistentHashRemoval(t *testing.T) {
	b := NewConsistentHashBalancer()

	before := map[string]string{}
	for i := 0; i < 200; i++ {
		k := fmt.Sprint(i)
		inst, err := b.Pick(k, testInstances)
		require.NoError(t, err)
		before[k] = inst.Addr
	}

	// Drop :9002; only keys that lived on it may move.
	remaining := []registry.ServiceInstance{testInstances[0], testInstances[2]}
	for k, addr := range before {
		inst, err := b.Pick(k, remaining)
		require.NoError(t, err)
		if addr != ":9002" {
			assert.Equal(t, addr, inst.Addr, "key %s moved", k)
		}
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{
		"":                "RoundRobin",
		"round_robin":     "RoundRobin",
		"weighted-random": "WeightedRandom",
		"Consistent_Hash": "ConsistentHash",
	} {
		b, err := New(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, b.Name())
	}
	_, err := New("random")
	assert.Error(t, err)
}
