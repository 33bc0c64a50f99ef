// Package registry tracks where remote worker hosts can be reached.
//
// A worker host is a process accepting stream connections and serving one
// worker per connection. Hosts register themselves under a service name;
// spawners discover them and pick one to dial.
package registry

// WorkerHost describes one reachable worker host.
type WorkerHost struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
}

type Registry interface {
	Register(service string, host WorkerHost, ttl int64) error
	Deregister(service string, addr string) error
	Discover(service string) ([]WorkerHost, error)
	Watch(service string) <-chan []WorkerHost
}
