// Package pricing fits and persists the per-category price and quantity
// distributions products are created from.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/retail-sim/retail-sim/sim/dist"
)

// Kind tags how a Distribution was fitted.
type Kind string

// Distribution kinds.
const (
	KindKDE    Kind = "kde"
	KindNormal Kind = "normal"
)

const (
	// MinKDESamples is the sample count from which a KDE is fitted.
	MinKDESamples = 5
	// MinValue floors every sampled price and quantity.
	MinValue = 1.0
	// MinStd floors the normal approximation's standard deviation.
	MinStd = 0.01
	// FallbackMean replaces a non-positive normal mean.
	FallbackMean = 1.0
)

// Distribution is a fitted price or quantity distribution. Samples are kept
// so the fit can be reproduced after a round trip through storage.
type Distribution struct {
	Kind    Kind
	Samples []float64
	Mean    float64
	Std     float64
	kde     *dist.KDE
}

// Fit chooses a KDE for at least MinKDESamples observations and a floored
// normal otherwise. Samples with zero variance also fall back to the normal.
func Fit(samples []float64) (*Distribution, error) {
	clean := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !math.IsNaN(s) && !math.IsInf(s, 0) {
			clean = append(clean, s)
		}
	}
	d := &Distribution{Samples: clean}
	normal := dist.FitNormal(clean, MinStd, FallbackMean)
	d.Mean, d.Std = normal.Mu, normal.Sigma

	if len(clean) >= MinKDESamples {
		k, err := dist.NewKDE(clean)
		switch {
		case err == nil:
			d.Kind, d.kde = KindKDE, k
			return d, nil
		case !errors.Is(err, dist.ErrDegenerate):
			return nil, fmt.Errorf("fitting kde: %w", err)
		}
	}
	d.Kind = KindNormal
	return d, nil
}

// restore rebuilds a Distribution of the given kind from stored samples.
func restore(kind Kind, samples []float64) (*Distribution, error) {
	d, err := Fit(samples)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindKDE:
		if d.Kind != KindKDE {
			return nil, fmt.Errorf("stored kde has %d usable samples", len(d.Samples))
		}
	case KindNormal:
		d.Kind, d.kde = KindNormal, nil
	default:
		return nil, fmt.Errorf("unknown distribution kind %q", kind)
	}
	return d, nil
}

// Sample draws one value, clamped to MinValue.
func (d *Distribution) Sample(rng *rand.Rand) float64 {
	var v float64
	if d.kde != nil {
		v = d.kde.Sample(rng)
	} else {
		v = rng.NormFloat64()*d.Std + d.Mean
	}
	return math.Max(MinValue, v)
}

// SampleN draws n values.
func (d *Distribution) SampleN(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Sample(rng)
	}
	return out
}
