package lease

import (
	"errors"
	"fmt"
	"sync"

	"worker-rpc/proxy"
	"worker-rpc/transport"
)

var (
	// ErrDefinitionUnknown is returned by Acquire for a slot no definition
	// was registered under.
	ErrDefinitionUnknown = errors.New("lease: unknown worker definition")

	// ErrDefinitionConflict is returned when a definition name is registered
	// twice.
	ErrDefinitionConflict = errors.New("lease: worker definition already registered")
)

// Definition describes how to start one kind of worker: how to spawn its
// transport and what to pass to its remote constructor.
type Definition struct {
	Name            string
	Spawner         transport.Spawner
	ConstructorArgs []any
	ProxyOptions    []proxy.Option
}

// Registry is an explicit, process-owned catalogue of worker definitions.
// Construct one, register definitions, hand it to NewManager — there is no
// ambient package-level registration.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(def Definition) error {
	if def.Name == "" || def.Spawner == nil {
		return errors.New("lease: definition needs a name and a spawner")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDefinitionConflict, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}
