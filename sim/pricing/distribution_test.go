package pricing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit_KindBySampleCount(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    Kind
	}{
		{"empty", nil, KindNormal},
		{"one", []float64{3}, KindNormal},
		{"four", []float64{3, 4, 5, 6}, KindNormal},
		{"five", []float64{3, 4, 5, 6, 7}, KindKDE},
		{"many", []float64{1, 2, 2, 3, 5, 8, 13, 21}, KindKDE},
		{"five constant", []float64{2, 2, 2, 2, 2}, KindNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Fit(tt.samples)
			require.NoError(t, err)
			if d.Kind != tt.want {
				t.Errorf("Fit(%v).Kind = %q, want %q", tt.samples, d.Kind, tt.want)
			}
		})
	}
}

func TestFit_NormalFloors(t *testing.T) {
	d, err := Fit([]float64{-4, -2})
	require.NoError(t, err)
	assert.Equal(t, FallbackMean, d.Mean)

	d, err = Fit([]float64{7})
	require.NoError(t, err)
	assert.Equal(t, 7.0, d.Mean)
	assert.Equal(t, MinStd, d.Std)
}

func TestDistribution_SampleClampedToMinimum(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, samples := range [][]float64{{0.1, 0.2}, {-5, 0, 0.5, 1, 1.5, 2}} {
		d, err := Fit(samples)
		require.NoError(t, err)
		for _, v := range d.SampleN(rng, 500) {
			if v < MinValue {
				t.Fatalf("sample %v below minimum %v (kind %s)", v, MinValue, d.Kind)
			}
		}
	}
}
