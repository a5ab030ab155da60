package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey identifies a reproducible simulation run. Two runs with the
// same key, configuration and checkpoint produce identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG subsystems.
const (
	// SubsystemPopulation drives agent instantiation during top-up. It uses
	// the master seed directly.
	SubsystemPopulation = "population"
	// SubsystemCustomers drives daily customer decisions.
	SubsystemCustomers = "customers"
	// SubsystemAnalysis drives down-sampling and clustering of source data.
	SubsystemAnalysis = "analysis"
)

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem. Subsystems other than SubsystemPopulation are seeded with
// masterSeed XOR fnv1a64(name).
//
// Not safe for concurrent use.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the cached RNG for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	seed := int64(p.key)
	if name != SubsystemPopulation {
		seed ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(seed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
