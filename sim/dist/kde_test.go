package dist

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKDE_ScottBandwidth(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	k, err := NewKDE(data)
	require.NoError(t, err)

	// sample std (ddof=1) of 1..8 is sqrt(6)
	wantFactor := math.Pow(8, -0.2)
	assert.InDelta(t, wantFactor, k.Factor(), 1e-12)
	assert.InDelta(t, wantFactor*math.Sqrt(6), k.Bandwidth(), 1e-12)
}

func TestNewKDE_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		data []float64
	}{
		{"empty", nil},
		{"single value", []float64{3}},
		{"constant", []float64{2, 2, 2, 2}},
		{"only NaN", []float64{math.NaN(), math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKDE(tt.data)
			if !errors.Is(err, ErrDegenerate) {
				t.Errorf("NewKDE(%v) error = %v, want ErrDegenerate", tt.data, err)
			}
		})
	}
}

func TestKDE_SampleMeanTracksData(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]float64, 200)
	for i := range data {
		data[i] = 50 + rng.NormFloat64()*5
	}
	k, err := NewKDE(data)
	require.NoError(t, err)

	n := 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += k.Sample(rng)
	}
	mean := sum / float64(n)
	if math.Abs(mean-k.Mean()) > 0.5 {
		t.Errorf("resampled mean = %.3f, want ≈ %.3f", mean, k.Mean())
	}
}

func TestKDE_DensityIntegratesToOne(t *testing.T) {
	k, err := NewKDE([]float64{1, 3, 4, 9, 10})
	require.NoError(t, err)
	step := 0.01
	total := 0.0
	for x := -30.0; x < 40; x += step {
		total += k.Density(x) * step
	}
	assert.InDelta(t, 1.0, total, 1e-3)
}

func TestKDE_JSONRefits(t *testing.T) {
	orig, err := NewKDEWithFactor([]float64{1.5, 2.5, 3.5, 10}, 0.7)
	require.NoError(t, err)

	b, err := json.Marshal(orig)
	require.NoError(t, err)

	var restored KDE
	require.NoError(t, json.Unmarshal(b, &restored))
	assert.Equal(t, orig.Data(), restored.Data())
	assert.Equal(t, orig.Factor(), restored.Factor())
	assert.InDelta(t, orig.Bandwidth(), restored.Bandwidth(), 1e-12)
}

func TestFitNormal_Floors(t *testing.T) {
	n := FitNormal([]float64{4, 4}, 0.01, 1.0)
	assert.Equal(t, 4.0, n.Mu)
	assert.Equal(t, 0.01, n.Sigma)

	n = FitNormal([]float64{-3, -1}, 0.01, 1.0)
	assert.Equal(t, 1.0, n.Mu, "non-positive mean falls back")

	n = FitNormal(nil, 0.01, 1.0)
	assert.Equal(t, Normal{Mu: 1.0, Sigma: 0.01}, n)
}

func TestClamped_NeverBelowFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		if v := Clamped(rng, 0, 10, 1); v < 1 {
			t.Fatalf("draw %d: got %v, want >= 1", i, v)
		}
	}
}
