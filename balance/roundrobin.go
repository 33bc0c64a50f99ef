package balance

import (
	"sync/atomic"

	"worker-rpc/registry"
)

// RoundRobin spreads dials evenly across all hosts in order.
// Uses an atomic counter for lock-free, goroutine-safe operation.
type RoundRobin struct {
	counter int64
}

func (b *RoundRobin) Pick(hosts []registry.WorkerHost) (*registry.WorkerHost, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(hosts))
	return &hosts[index], nil
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
