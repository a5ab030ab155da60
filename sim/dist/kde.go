// Package dist provides the probability distributions agents draw from:
// Gaussian kernel density estimates, clamped normals, categorical frequency
// tables, and the Field variant that holds one of the latter two.
package dist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// ErrDegenerate is returned when a density cannot be fitted because the
// samples are empty, a single value, or have zero variance.
var ErrDegenerate = errors.New("degenerate samples")

// Sampler draws one real value.
type Sampler interface {
	Sample(rng *rand.Rand) float64
}

// KDE is a one-dimensional Gaussian kernel density estimate.
// The kernel bandwidth is factor * sample standard deviation, with the
// factor chosen by Scott's rule (n^-1/5) unless given explicitly.
type KDE struct {
	data      []float64
	factor    float64
	bandwidth float64
}

// ScottFactor returns Scott's bandwidth factor for n one-dimensional samples.
func ScottFactor(n int) float64 {
	return math.Pow(float64(n), -0.2)
}

// NewKDE fits a KDE over data using Scott's rule. NaN values are dropped.
func NewKDE(data []float64) (*KDE, error) {
	clean := dropNaN(data)
	return NewKDEWithFactor(clean, ScottFactor(len(clean)))
}

// NewKDEWithFactor fits a KDE with an explicit bandwidth factor, which is how
// a persisted density is reconstructed from its raw samples.
func NewKDEWithFactor(data []float64, factor float64) (*KDE, error) {
	clean := dropNaN(data)
	if len(clean) < 2 {
		return nil, fmt.Errorf("kde over %d samples: %w", len(clean), ErrDegenerate)
	}
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("kde bandwidth factor %v must be positive", factor)
	}
	sd := stat.StdDev(clean, nil)
	if sd == 0 || math.IsNaN(sd) {
		return nil, fmt.Errorf("kde over constant samples: %w", ErrDegenerate)
	}
	return &KDE{data: clean, factor: factor, bandwidth: factor * sd}, nil
}

// Sample resamples the density: pick a data point uniformly and add kernel noise.
func (k *KDE) Sample(rng *rand.Rand) float64 {
	x := k.data[rng.Intn(len(k.data))]
	return x + rng.NormFloat64()*k.bandwidth
}

// Density evaluates the estimated probability density at x.
func (k *KDE) Density(x float64) float64 {
	norm := 1 / (float64(len(k.data)) * k.bandwidth * math.Sqrt(2*math.Pi))
	sum := 0.0
	for _, d := range k.data {
		z := (x - d) / k.bandwidth
		sum += math.Exp(-0.5 * z * z)
	}
	return sum * norm
}

// Mean returns the mean of the underlying samples.
func (k *KDE) Mean() float64 { return stat.Mean(k.data, nil) }

// Data returns a copy of the raw samples.
func (k *KDE) Data() []float64 {
	out := make([]float64, len(k.data))
	copy(out, k.data)
	return out
}

// Factor returns the bandwidth factor.
func (k *KDE) Factor() float64 { return k.factor }

// Bandwidth returns the kernel standard deviation.
func (k *KDE) Bandwidth() float64 { return k.bandwidth }

type kdeJSON struct {
	Data []float64 `json:"data"`
	BW   float64   `json:"bw"`
}

// MarshalJSON stores raw samples and the bandwidth factor; the fitted state is
// rebuilt on decode.
func (k *KDE) MarshalJSON() ([]byte, error) {
	return json.Marshal(kdeJSON{Data: k.data, BW: k.factor})
}

// UnmarshalJSON refits the density from stored samples.
func (k *KDE) UnmarshalJSON(b []byte) error {
	var raw kdeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	fitted, err := NewKDEWithFactor(raw.Data, raw.BW)
	if err != nil {
		return err
	}
	*k = *fitted
	return nil
}

func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}
