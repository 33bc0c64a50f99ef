// Package lease shares one lazy worker proxy among any number of independent
// consumers. A slot's proxy exists exactly from the first Acquire to the last
// Release, regardless of acquisition order.
package lease

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"worker-rpc/proxy"
)

var (
	// ErrLeaseNotHeld is returned by Release without a matching Acquire.
	// The count never goes negative; unbalanced callers fail loudly.
	ErrLeaseNotHeld = errors.New("lease: release without matching acquire")

	// ErrManagerShutdown is returned once the manager has been shut down.
	ErrManagerShutdown = errors.New("lease: manager is shut down")
)

type slot struct {
	proxy *proxy.Proxy
	refs  int
}

// Manager hands out leases on shared worker proxies, one slot per definition
// name. It is the sole mutator of lease counts and treats each proxy as an
// opaque disposable resource.
type Manager struct {
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(registry *Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		logger:   slog.Default(),
		slots:    make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire returns the slot's shared proxy, constructing it on first use.
// Construction is cheap: nothing is spawned until the proxy's first call.
func (m *Manager) Acquire(name string) (*proxy.Proxy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerShutdown
	}

	s := m.slots[name]
	if s == nil {
		def, ok := m.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionUnknown, name)
		}
		s = &slot{proxy: proxy.New(def.Spawner, def.ConstructorArgs, def.ProxyOptions...)}
		m.slots[name] = s
		m.logger.Debug("lease: constructed slot", "slot", name)
	}
	s.refs++
	return s.proxy, nil
}

// Release drops one lease. When the count reaches zero the slot is cleared
// under the lock — a racing Acquire observes it empty and builds a fresh
// instance — and the old proxy is disposed after the lock is released, since
// the underlying teardown may touch the transport.
func (m *Manager) Release(name string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerShutdown
	}
	s := m.slots[name]
	if s == nil || s.refs == 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLeaseNotHeld, name)
	}
	s.refs--
	if s.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.slots, name)
	m.mu.Unlock()

	m.logger.Debug("lease: disposing slot", "slot", name)
	return s.proxy.Dispose()
}

// Shutdown disposes every remaining slot, leased or not, and rejects all
// further Acquire/Release calls. Part of the registry/manager lifecycle:
// whoever built the manager tears it down.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	slots := m.slots
	m.slots = nil
	m.mu.Unlock()

	for name, s := range slots {
		m.logger.Debug("lease: disposing slot at shutdown", "slot", name, "refs", s.refs)
		s.proxy.Dispose()
	}
}
