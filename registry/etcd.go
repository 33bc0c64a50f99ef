// etcd-based implementation of the Registry interface.
//
// etcd is a distributed key-value store with strong consistency. Worker hosts
// live under:
//
//	Key:   /worker-rpc/{service}/{addr}
//	Value: JSON-encoded WorkerHost
//
// Registration uses TTL-based leases: if a host crashes, its lease expires
// and the entry disappears on its own — no ghost hosts.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/worker-rpc/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register adds a worker host with a TTL lease and keeps the lease alive in
// the background. The lease ID stays local to this call so multiple hosts can
// share one EtcdRegistry without racing on shared state.
func (r *EtcdRegistry) Register(service string, host WorkerHost, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(host)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, etcdPrefix+service+"/"+host.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keep-alive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a worker host. Called during graceful shutdown before
// the host closes its listener.
func (r *EtcdRegistry) Deregister(service string, addr string) error {
	_, err := r.client.Delete(context.TODO(), etcdPrefix+service+"/"+addr)
	return err
}

// Watch monitors a service prefix and emits the updated host list whenever
// anything changes (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(service string) <-chan []WorkerHost {
	ctx := context.TODO()
	ch := make(chan []WorkerHost, 1)
	prefix := etcdPrefix + service + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change; simpler than replaying
			// individual events.
			hosts, _ := r.Discover(service)
			ch <- hosts
		}
	}()

	return ch
}

// Discover returns all currently registered hosts for a service.
func (r *EtcdRegistry) Discover(service string) ([]WorkerHost, error) {
	prefix := etcdPrefix + service + "/"

	resp, err := r.client.Get(context.TODO(), prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	hosts := make([]WorkerHost, 0)
	for _, kv := range resp.Kvs {
		var host WorkerHost
		if err := json.Unmarshal(kv.Value, &host); err != nil {
			continue // Skip malformed entries
		}
		hosts = append(hosts, host)
	}

	return hosts, nil
}
