package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// KeyPrefix roots every key this package writes:
//
//	/session-gateway/{service}/{addr} → JSON ServiceInstance
const KeyPrefix = "/session-gateway/"

// EtcdRegistry stores instances in etcd under TTL leases. If a gateway dies
// without deregistering, its lease expires and the entry disappears.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key → lease, revoked on Deregister
}

func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd %v: %w", endpoints, err)
	}
	return &EtcdRegistry{
		client: c,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func key(service, addr string) string {
	return KeyPrefix + service + "/" + addr
}

func prefix(service string) string {
	return KeyPrefix + service + "/"
}

// Register grants a lease, writes the instance under it and keeps the lease
// alive until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, service string, instance ServiceInstance, ttlSeconds int64) error {
	lease, err := r.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	k := key(service, instance.Addr)
	if _, err := r.client.Put(ctx, k, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("put %s: %w", k, err)
	}

	// The keep-alive must outlive ctx, which usually belongs to a startup call.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return fmt.Errorf("keepalive %s: %w", k, err)
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("registry keepalive stopped", zap.String("key", k))
	}()

	r.mu.Lock()
	r.leases[k] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister deletes the instance and revokes its lease, which also stops the keep-alive.
func (r *EtcdRegistry) Deregister(ctx context.Context, service string, addr string) error {
	k := key(service, addr)
	if _, err := r.client.Delete(ctx, k); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}

	r.mu.Lock()
	leaseID, ok := r.leases[k]
	delete(r.leases, k)
	r.mu.Unlock()
	if ok {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("revoke lease for %s: %w", k, err)
		}
	}
	return nil
}

// Discover returns every instance currently registered for service.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, prefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("registry skipping malformed entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the full instance list after every change under the service
// prefix, until ctx is done. Only the latest list is kept if the reader lags.
func (r *EtcdRegistry) Watch(ctx context.Context, service string) <-chan []ServiceInstance {
	out := make(chan []ServiceInstance, 1)
	go func() {
		defer close(out)
		for range r.client.Watch(ctx, prefix(service), clientv3.WithPrefix()) {
			instances, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Warn("registry watch refresh failed", zap.String("service", service), zap.Error(err))
				continue
			}
			publishLatest(out, instances)
		}
	}()
	return out
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}

// publishLatest replaces any unread value in out with v.
func publishLatest(out chan []ServiceInstance, v []ServiceInstance) {
	select {
	case <-out:
	default:
	}
	out <- v
}
