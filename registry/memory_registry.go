package registry

import (
	"context"
	"sync"
)

// Memory keeps instances in process. It backs static gateway lists
// (the CLI's --gateway flag) and tests. TTLs are ignored.
type Memory struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemory() *Memory {
	return &Memory{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// Static returns a registry holding instances under service.
func Static(service string, instances ...ServiceInstance) *Memory {
	r := NewMemory()
	r.instances[service] = append([]ServiceInstance(nil), instances...)
	return r
}

func (r *Memory) Register(_ context.Context, service string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.instances[service]
	for i := range list {
		if list[i].Addr == instance.Addr {
			list[i] = instance
			r.notifyLocked(service)
			return nil
		}
	}
	r.instances[service] = append(list, instance)
	r.notifyLocked(service)
	return nil
}

func (r *Memory) Deregister(_ context.Context, service string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.instances[service]
	for i := range list {
		if list[i].Addr == addr {
			r.instances[service] = append(list[:i:i], list[i+1:]...)
			r.notifyLocked(service)
			break
		}
	}
	return nil
}

func (r *Memory) Discover(_ context.Context, service string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceInstance(nil), r.instances[service]...), nil
}

func (r *Memory) Watch(ctx context.Context, service string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[service]
		for i, w := range ws {
			if w == ch {
				r.watchers[service] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (r *Memory) Close() error { return nil }

func (r *Memory) notifyLocked(service string) {
	snapshot := append([]ServiceInstance(nil), r.instances[service]...)
	for _, w := range r.watchers[service] {
		publishLatest(w, snapshot)
	}
}
