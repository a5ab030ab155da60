package dist

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoricalField_SamplesNumericKeys(t *testing.T) {
	f, err := CategoricalField(map[string]float64{"10": 1})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))
	assert.Equal(t, KindCategorical, f.Kind())
	assert.Equal(t, 10.0, f.Sample(rng))
}

func TestCategoricalField_RejectsNonNumeric(t *testing.T) {
	_, err := CategoricalField(map[string]float64{"ten": 1})
	assert.Error(t, err)
}

func TestField_RecordRoundTrip(t *testing.T) {
	k, err := NewKDE([]float64{1, 2, 4, 8, 16})
	require.NoError(t, err)
	cat, err := CategoricalField(map[string]float64{"1": 1, "2": 3})
	require.NoError(t, err)

	for _, f := range []Field{ContinuousField(k), cat} {
		t.Run(f.Kind().String(), func(t *testing.T) {
			b, err := json.Marshal(f.Record())
			require.NoError(t, err)
			var rec FieldRecord
			require.NoError(t, json.Unmarshal(b, &rec))

			restored, err := FieldFromRecord(rec)
			require.NoError(t, err)
			assert.Equal(t, f.Kind(), restored.Kind())
			assert.Equal(t, f.Table(), restored.Table())
			if f.Kind() == KindContinuous {
				assert.Equal(t, k.Data(), restored.Density().Data())
				assert.Equal(t, k.Factor(), restored.Density().Factor())
			}
		})
	}
}

func TestFieldFromRecord_Empty(t *testing.T) {
	_, err := FieldFromRecord(FieldRecord{})
	assert.Error(t, err)
}
