// Package balance provides strategies for picking one worker host among the
// hosts a registry discovered.
//
// Two strategies are implemented:
//   - RoundRobin:      equal-capacity hosts, even spread
//   - WeightedRandom:  heterogeneous hosts (different CPU/memory)
package balance

import (
	"errors"

	"worker-rpc/registry"
)

// ErrNoHosts is returned when discovery produced an empty host list.
var ErrNoHosts = errors.New("balance: no worker hosts available")

// Picker selects one host from the available list.
// Pick is called before every dial and must be goroutine-safe.
type Picker interface {
	Pick(hosts []registry.WorkerHost) (*registry.WorkerHost, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
