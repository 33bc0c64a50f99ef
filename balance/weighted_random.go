package balance

import (
	"errors"
	"math/rand"

	"worker-rpc/registry"
)

// WeightedRandom picks hosts with probability proportional to their weight.
// Hosts with zero weight are never picked unless every weight is zero, in
// which case selection degrades to uniform.
type WeightedRandom struct{}

func (b *WeightedRandom) Pick(hosts []registry.WorkerHost) (*registry.WorkerHost, error) {
	if len(hosts) == 0 {
		return nil, ErrNoHosts
	}

	totalWeight := 0
	for _, h := range hosts {
		totalWeight += h.Weight
	}
	if totalWeight <= 0 {
		return &hosts[rand.Intn(len(hosts))], nil
	}

	r := rand.Intn(totalWeight)
	for i := range hosts {
		r -= hosts[i].Weight
		if r < 0 {
			return &hosts[i], nil
		}
	}

	return nil, errors.New("balance: unexpected fallthrough in weighted selection")
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}
