// Package registry allocates agent identifiers from per-kind ranges that
// only ever grow across runs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/retail-sim/retail-sim/sim/agent"
)

var (
	// ErrInconsistent means the loaded agents do not fill the range the
	// registry has allocated for their kind.
	ErrInconsistent = errors.New("agents inconsistent with id registry")
	// ErrUnknownKind is returned for a kind without an id range.
	ErrUnknownKind = errors.New("unknown agent kind")
	// ErrRegressed means a persisted counter is behind where it must be.
	ErrRegressed = errors.New("id counter regressed")
	// ErrRangeExhausted means a kind has used every id below the next
	// kind's base.
	ErrRangeExhausted = errors.New("id range exhausted")
)

// Total counter names.
const (
	TotalTransaction = "total_transaction"
	TotalCustomer1   = "total_customer1"
	TotalCustomer2   = "total_customer2"
	TotalProduct     = "total_product"
)

// Bases are the first identifier of each kind's range.
var Bases = map[agent.Kind]int64{
	agent.KindCust1:   0,
	agent.KindCust2:   5000,
	agent.KindProduct: 10000,
}

// Ceiling returns the first id past kind's range: the smallest base above
// its own. The highest range is unbounded and reports ok false.
func Ceiling(kind agent.Kind) (ceiling int64, ok bool) {
	base, known := Bases[kind]
	if !known {
		return 0, false
	}
	for _, b := range Bases {
		if b > base && (!ok || b < ceiling) {
			ceiling, ok = b, true
		}
	}
	return ceiling, ok
}

var totals = map[agent.Kind]string{
	agent.KindCust1:   TotalCustomer1,
	agent.KindCust2:   TotalCustomer2,
	agent.KindProduct: TotalProduct,
}

// Seeds maps a counter name to its next value. Kind counters are keyed by
// the kind name.
type Seeds map[string]int64

// DefaultSeeds is the state of a registry that has never been committed.
func DefaultSeeds() Seeds {
	s := Seeds{TotalTransaction: 0}
	for k, base := range Bases {
		s[string(k)] = base
		s[totals[k]] = 0
	}
	return s
}

func (s Seeds) clone() Seeds {
	out := make(Seeds, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// withDefaults fills counters missing from s.
func (s Seeds) withDefaults() Seeds {
	out := DefaultSeeds()
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Backend persists seeds. Update is a single atomic read-modify-write.
type Backend interface {
	Load(ctx context.Context) (Seeds, error)
	Update(ctx context.Context, fn func(stored Seeds) (Seeds, error)) error
	Close() error
}

// Registry hands out identifiers. Allocations are held in memory until
// Commit.
type Registry struct {
	mu      sync.Mutex
	backend Backend
	initial Seeds
	next    Seeds
}

// Open loads the persisted seeds from b.
func Open(ctx context.Context, b Backend) (*Registry, error) {
	r := &Registry{backend: b}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload discards uncommitted allocations and re-reads the backend.
func (r *Registry) Reload(ctx context.Context) error {
	stored, err := r.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading id seeds: %w", err)
	}
	stored = stored.withDefaults()
	for k, base := range Bases {
		if stored[string(k)] < base {
			return fmt.Errorf("%w: %s at %d is below its base %d", ErrRegressed, k, stored[string(k)], base)
		}
	}
	r.mu.Lock()
	r.initial = stored
	r.next = stored.clone()
	r.mu.Unlock()
	return nil
}

// Next allocates one identifier of kind.
func (r *Registry) Next(kind agent.Kind) (int64, error) {
	if _, ok := Bases[kind]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.next[string(kind)]
	if ceiling, ok := Ceiling(kind); ok && id >= ceiling {
		return 0, fmt.Errorf("%w: %s reached %d", ErrRangeExhausted, kind, ceiling)
	}
	r.next[string(kind)]++
	r.next[totals[kind]]++
	return id, nil
}

// AddTransactions counts n completed purchases.
func (r *Registry) AddTransactions(n int64) {
	r.mu.Lock()
	r.next[TotalTransaction] += n
	r.mu.Unlock()
}

// Peek returns the next identifier of kind without allocating it.
func (r *Registry) Peek(kind agent.Kind) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next[string(kind)]
}

// Initial returns the next identifier of kind as it was at load.
func (r *Registry) Initial(kind agent.Kind) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initial[string(kind)]
}

// Range returns the allocated half-open identifier range of kind.
func (r *Registry) Range(kind agent.Kind) (lo, hi int64) {
	return Bases[kind], r.Peek(kind)
}

// Totals returns a copy of every counter.
func (r *Registry) Totals() Seeds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next.clone()
}

// Verify checks that, for every kind, the loaded identifiers inside the
// allocated range cover it exactly.
func (r *Registry) Verify(loaded map[agent.Kind][]int64) error {
	var errs []error
	for _, kind := range agent.Kinds {
		lo, hi := r.Range(kind)
		n := int64(0)
		for _, id := range loaded[kind] {
			if id >= lo && id < hi {
				n++
			}
		}
		if n != hi-lo {
			errs = append(errs, fmt.Errorf("%w: %s has %d agents in [%d, %d), want %d",
				ErrInconsistent, kind, n, lo, hi, hi-lo))
		}
	}
	return errors.Join(errs...)
}

// Commit persists the allocations made since load. It fails if another
// writer has moved a counter past this registry's view.
func (r *Registry) Commit(ctx context.Context) error {
	r.mu.Lock()
	next := r.next.clone()
	r.mu.Unlock()

	err := r.backend.Update(ctx, func(stored Seeds) (Seeds, error) {
		stored = stored.withDefaults()
		var names []string
		for k := range next {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			if stored[k] > next[k] {
				return nil, fmt.Errorf("%w: %s stored %d, committing %d", ErrRegressed, k, stored[k], next[k])
			}
		}
		return next, nil
	})
	if err != nil {
		return fmt.Errorf("committing id seeds: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"cust1":   next[string(agent.KindCust1)],
		"cust2":   next[string(agent.KindCust2)],
		"product": next[string(agent.KindProduct)],
	}).Debug("committed id seeds")

	r.mu.Lock()
	r.initial = next
	r.mu.Unlock()
	return nil
}

// Close releases the backend.
func (r *Registry) Close() error { return r.backend.Close() }

// MemoryBackend keeps seeds in process. The zero value is ready to use.
type MemoryBackend struct {
	mu    sync.Mutex
	seeds Seeds
}

// NewMemoryBackend returns a backend holding a copy of seeds.
func NewMemoryBackend(seeds Seeds) *MemoryBackend {
	return &MemoryBackend{seeds: seeds.clone()}
}

// Load implements Backend.
func (m *MemoryBackend) Load(context.Context) (Seeds, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seeds == nil {
		return DefaultSeeds(), nil
	}
	return m.seeds.clone(), nil
}

// Update implements Backend.
func (m *MemoryBackend) Update(_ context.Context, fn func(Seeds) (Seeds, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.seeds
	if stored == nil {
		stored = DefaultSeeds()
	}
	next, err := fn(stored.clone())
	if err != nil {
		return err
	}
	m.seeds = next.clone()
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }
