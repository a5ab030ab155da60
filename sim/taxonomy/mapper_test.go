package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapper_Map(t *testing.T) {
	m := NewMapper(storeTaxonomy(t))
	got := m.Map(map[string]float64{
		"Dairy":        0.5,
		"Home":         0.3,
		"Bakery Goods": 0.2,
	})

	total := 1.01
	assert.InDelta(t, 0.5/total, got["dairy"], 1e-9)
	assert.InDelta(t, 0.2/total, got["bakery"], 1e-9)
	assert.InDelta(t, 0.15/total, got["furniture"], 1e-9, "group label splits evenly")
	assert.InDelta(t, 0.15/total, got["decor"], 1e-9, "group label splits evenly")
	assert.InDelta(t, 0.01/total, got["produce"], 1e-9, "unmatched leaf gets the floor")
}

// Every canonical leaf appears with positive mass and the table sums to 1.
func TestMapper_CoversEveryLeaf(t *testing.T) {
	tax := storeTaxonomy(t)
	m := NewMapper(tax)
	segments := map[int]map[string]float64{
		0: {"Dairy": 1},
		1: {"Furniture": 0.4, "Decor": 0.4, "Food": 0.2},
		2: {"Sports & Outdoors": 1},
		3: {},
	}
	mapped := m.MapSegments(segments)
	require.Len(t, mapped, len(segments))

	for id, table := range mapped {
		keys := make([]string, 0, len(table))
		sum := 0.0
		for k, p := range table {
			keys = append(keys, k)
			assert.Greater(t, p, 0.0, "segment %d leaf %q", id, k)
			sum += p
		}
		assert.ElementsMatch(t, tax.LeafKeys(), keys, "segment %d", id)
		assert.InDelta(t, 1.0, sum, 1e-9, "segment %d", id)
	}
}

func TestMapper_AccumulatesOnSharedLeaf(t *testing.T) {
	m := NewMapper(storeTaxonomy(t))
	got := m.Map(map[string]float64{"Dairy": 0.3, "dairy": 0.3, "Produce": 0.4})
	assert.InDelta(t, 0.6/1.03, got["dairy"], 1e-9)
}
