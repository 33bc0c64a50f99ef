package registry

import "sync"

// MemoryRegistry keeps worker hosts in process memory. It serves single-node
// deployments and tests. TTLs are accepted but not enforced — an in-process
// host that dies takes the whole process with it anyway.
type MemoryRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]WorkerHost
	watchers map[string][]chan []WorkerHost
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]WorkerHost),
		watchers: make(map[string][]chan []WorkerHost),
	}
}

func (r *MemoryRegistry) Register(service string, host WorkerHost, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hosts := r.services[service]
	if hosts == nil {
		hosts = make(map[string]WorkerHost)
		r.services[service] = hosts
	}
	hosts[host.Addr] = host
	r.notifyLocked(service)
	return nil
}

func (r *MemoryRegistry) Deregister(service string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services[service], addr)
	r.notifyLocked(service)
	return nil
}

func (r *MemoryRegistry) Discover(service string) ([]WorkerHost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(service), nil
}

func (r *MemoryRegistry) Watch(service string) <-chan []WorkerHost {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan []WorkerHost, 1)
	r.watchers[service] = append(r.watchers[service], ch)
	return ch
}

func (r *MemoryRegistry) listLocked(service string) []WorkerHost {
	hosts := make([]WorkerHost, 0, len(r.services[service]))
	for _, h := range r.services[service] {
		hosts = append(hosts, h)
	}
	return hosts
}

// notifyLocked pushes the current list to every watcher, replacing a stale
// undelivered update rather than blocking on it.
func (r *MemoryRegistry) notifyLocked(service string) {
	hosts := r.listLocked(service)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- hosts
	}
}
