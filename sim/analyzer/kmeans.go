package analyzer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Labeled is an encoded dataset with one k-means cluster label per row.
type Labeled struct {
	*Encoded
	K         int
	Labels    []int
	Centroids [][]float64
}

// ClusterData segments rows with k-means over the one-hot indicators and
// numeric columns. Identifier and free-text columns are ignored. Missing
// numeric cells are imputed with the column mean.
func ClusterData(enc *Encoded, opts Options) (*Labeled, error) {
	k := opts.Clusters
	if k < 1 {
		return nil, fmt.Errorf("cluster count %d must be positive", k)
	}
	if enc.Rows < k {
		return nil, fmt.Errorf("cannot form %d clusters from %d rows", k, enc.Rows)
	}
	points := enc.features()
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	labels, centroids := kmeans(points, k, maxIter, rng)
	return &Labeled{Encoded: enc, K: k, Labels: labels, Centroids: centroids}, nil
}

func (e *Encoded) features() [][]float64 {
	dims := len(e.Indicators) + len(e.Numeric)
	points := make([][]float64, e.Rows)
	for i := range points {
		points[i] = make([]float64, dims)
	}
	for j, ind := range e.Indicators {
		for i, v := range ind.Values {
			points[i][j] = v
		}
	}
	for n, col := range e.Numeric {
		values := e.Numbers[col]
		fill := 0.0
		if present := dropMissing(values); len(present) > 0 {
			fill = stat.Mean(present, nil)
		}
		j := len(e.Indicators) + n
		for i, v := range values {
			if math.IsNaN(v) {
				v = fill
			}
			points[i][j] = v
		}
	}
	return points
}

// kmeans runs Lloyd's algorithm from a k-means++ seeding.
func kmeans(points [][]float64, k, maxIter int, rng *rand.Rand) ([]int, [][]float64) {
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	dims := len(points[0])
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(p, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // empty cluster keeps its previous centroid
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			centroids[c] = sums[c]
		}
	}
	return labels, centroids
}

func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	d2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := floats.Distance(p, centroids[nearest(p, centroids)], 2)
			d2[i] = d * d
			total += d2[i]
		}
		idx := 0
		if total == 0 {
			idx = rng.Intn(len(points))
		} else {
			target := rng.Float64() * total
			for acc := 0.0; idx < len(points)-1; idx++ {
				acc += d2[idx]
				if acc >= target {
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), points[idx]...))
	}
	return centroids
}

func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(p, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func dropMissing(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
