package dist

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// Normal is a Gaussian parameterised by mean and standard deviation.
type Normal struct {
	Mu    float64 `json:"mean"`
	Sigma float64 `json:"std"`
}

// Sample draws one value.
func (n Normal) Sample(rng *rand.Rand) float64 {
	return rng.NormFloat64()*n.Sigma + n.Mu
}

// FitNormal derives population mean and standard deviation from samples,
// flooring sigma at minSigma and replacing a non-positive or missing mean
// with fallbackMu.
func FitNormal(samples []float64, minSigma, fallbackMu float64) Normal {
	clean := dropNaN(samples)
	if len(clean) == 0 {
		return Normal{Mu: fallbackMu, Sigma: minSigma}
	}
	mu, sigma := stat.PopMeanStdDev(clean, nil)
	if mu <= 0 || math.IsNaN(mu) {
		mu = fallbackMu
	}
	if sigma < minSigma || math.IsNaN(sigma) {
		sigma = minSigma
	}
	return Normal{Mu: mu, Sigma: sigma}
}

// Clamped draws from a normal and clamps the result to lo.
func Clamped(rng *rand.Rand, mu, sigma, lo float64) float64 {
	return math.Max(lo, rng.NormFloat64()*sigma+mu)
}
