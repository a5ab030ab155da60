package dist

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCategorical_Normalises(t *testing.T) {
	c, err := NewCategorical(map[string]float64{"a": 2, "b": 6, "zero": 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.InDelta(t, 0.25, c.Prob("a"), 1e-12)
	assert.InDelta(t, 0.75, c.Prob("b"), 1e-12)
	assert.Zero(t, c.Prob("zero"))
}

func TestNewCategorical_Empty(t *testing.T) {
	_, err := NewCategorical(map[string]float64{"a": 0})
	assert.True(t, errors.Is(err, ErrEmptyTable))
}

func TestCategorical_SampleFrequencies(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := MustCategorical(map[string]float64{"x": 0.2, "y": 0.8})
	counts := map[string]int{}
	n := 10000
	for i := 0; i < n; i++ {
		counts[c.Sample(rng)]++
	}
	assert.InDelta(t, 0.2, float64(counts["x"])/float64(n), 0.02)
	assert.InDelta(t, 0.8, float64(counts["y"])/float64(n), 0.02)
}

func TestCategorical_TopBreaksTiesByKey(t *testing.T) {
	c := MustCategorical(map[string]float64{"15": 0.3, "02": 0.3, "28": 0.3, "07": 0.1})
	assert.Equal(t, []string{"02", "15", "28"}, c.Top(3))
	assert.Len(t, c.Top(10), 4)
}
