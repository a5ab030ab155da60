package sim

import (
	"math"
	"math/rand"
	"testing"
)

func TestSimulationKey_Creation(t *testing.T) {
	tests := []struct {
		name string
		seed int64
	}{
		{"positive seed", 42},
		{"zero seed", 0},
		{"negative seed", -1},
		{"max int64", math.MaxInt64},
		{"min int64", math.MinInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := NewSimulationKey(tt.seed)
			if int64(key) != tt.seed {
				t.Errorf("NewSimulationKey(%d) = %d, want %d", tt.seed, key, tt.seed)
			}
		})
	}
}

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	rng1 := NewPartitionedRNG(NewSimulationKey(42))
	rng2 := NewPartitionedRNG(NewSimulationKey(42))

	for i := 0; i < 3; i++ {
		v1 := rng1.ForSubsystem(SubsystemCustomers).Float64()
		v2 := rng2.ForSubsystem(SubsystemCustomers).Float64()
		if v1 != v2 {
			t.Errorf("value %d: got %v and %v, want identical", i, v1, v2)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// Drawing from population must not shift the customers stream.
	rngA := NewPartitionedRNG(NewSimulationKey(42))
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemPopulation).Float64()
	}
	got := rngA.ForSubsystem(SubsystemCustomers).Float64()

	fresh := NewPartitionedRNG(NewSimulationKey(42))
	want := fresh.ForSubsystem(SubsystemCustomers).Float64()
	if got != want {
		t.Errorf("customers first value = %v, want %v (isolation broken)", got, want)
	}
}

func TestPartitionedRNG_PopulationUsesMasterSeed(t *testing.T) {
	for _, seed := range []int64{0, 42, math.MinInt64} {
		population := NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemPopulation)
		direct := rand.New(rand.NewSource(seed))
		for i := 0; i < 10; i++ {
			if got, want := population.Float64(), direct.Float64(); got != want {
				t.Fatalf("seed %d value %d: population = %v, direct = %v", seed, i, got, want)
			}
		}
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	if rng.ForSubsystem(SubsystemAnalysis) != rng.ForSubsystem(SubsystemAnalysis) {
		t.Error("ForSubsystem returned different instances for same name")
	}
	if len(rng.subsystems) != 1 {
		t.Errorf("have %d subsystems, want 1", len(rng.subsystems))
	}
}

func TestPartitionedRNG_Key(t *testing.T) {
	rng := NewPartitionedRNG(NewSimulationKey(12345))
	if rng.Key() != SimulationKey(12345) {
		t.Errorf("Key() = %v, want 12345", rng.Key())
	}
}

func TestFnv1a64_NoCollisions(t *testing.T) {
	names := []string{
		SubsystemCustomers,
		SubsystemAnalysis,
		SubsystemAnalysis + "_cust1",
		SubsystemAnalysis + "_cust2",
		"",
	}
	hashes := make(map[int64]string)
	for _, name := range names {
		h := fnv1a64(name)
		if existing, ok := hashes[h]; ok {
			t.Errorf("hash collision: %q and %q both hash to %d", name, existing, h)
		}
		hashes[h] = name
	}
}

func BenchmarkPartitionedRNG_ForSubsystem_CacheHit(b *testing.B) {
	rng := NewPartitionedRNG(NewSimulationKey(42))
	rng.ForSubsystem(SubsystemCustomers)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rng.ForSubsystem(SubsystemCustomers)
	}
}
