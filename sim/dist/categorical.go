package dist

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// ErrEmptyTable is returned when a frequency table has no positive entry.
var ErrEmptyTable = errors.New("frequency table has no positive probability")

// Categorical samples labels from a frequency table using inverse CDF.
// Keys are held sorted so that sampling is deterministic for a given rng.
type Categorical struct {
	keys  []string
	cdf   []float64
	probs map[string]float64
}

// NewCategorical normalises table and builds the sampler. Zero or negative
// entries are dropped.
func NewCategorical(table map[string]float64) (*Categorical, error) {
	keys := make([]string, 0, len(table))
	total := 0.0
	for k, p := range table {
		if p > 0 {
			keys = append(keys, k)
			total += p
		}
	}
	if len(keys) == 0 {
		return nil, ErrEmptyTable
	}
	sort.Strings(keys)

	c := &Categorical{
		keys:  keys,
		cdf:   make([]float64, len(keys)),
		probs: make(map[string]float64, len(keys)),
	}
	cumulative := 0.0
	for i, k := range keys {
		p := table[k] / total
		c.probs[k] = p
		cumulative += p
		c.cdf[i] = cumulative
	}
	c.cdf[len(c.cdf)-1] = 1.0
	return c, nil
}

// MustCategorical is NewCategorical for literal tables known to be valid.
func MustCategorical(table map[string]float64) *Categorical {
	c, err := NewCategorical(table)
	if err != nil {
		panic(fmt.Sprintf("dist: %v", err))
	}
	return c
}

// Sample draws one label.
func (c *Categorical) Sample(rng *rand.Rand) string {
	if len(c.keys) == 1 {
		return c.keys[0]
	}
	idx := sort.SearchFloat64s(c.cdf, rng.Float64())
	if idx >= len(c.keys) {
		idx = len(c.keys) - 1
	}
	return c.keys[idx]
}

// Prob returns the normalised probability of key.
func (c *Categorical) Prob(key string) float64 { return c.probs[key] }

// Keys returns the labels in sorted order.
func (c *Categorical) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Table returns a copy of the normalised table.
func (c *Categorical) Table() map[string]float64 {
	out := make(map[string]float64, len(c.probs))
	for k, v := range c.probs {
		out[k] = v
	}
	return out
}

// Top returns up to n labels ordered by descending probability, ties broken
// by label.
func (c *Categorical) Top(n int) []string {
	keys := c.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return c.probs[keys[i]] > c.probs[keys[j]]
	})
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys
}
