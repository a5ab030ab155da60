package analyzer

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separatedFrame has two dense groups around 0 and 100 plus two far outliers.
func separatedFrame(t *testing.T) *Frame {
	t.Helper()
	var records [][]string
	for i := 0; i < 20; i++ {
		records = append(records, []string{strconv.Itoa(i % 5), "low"})
	}
	for i := 0; i < 20; i++ {
		records = append(records, []string{strconv.Itoa(100 + i%5), "high"})
	}
	records = append(records, []string{"10000", "high"}, []string{"10001", "low"})
	f, err := NewFrame([]string{"spend", "tier"}, records)
	require.NoError(t, err)
	return f
}

func clusterOptions(k int) Options {
	opts := DefaultOptions()
	opts.Cutoff = 3
	opts.Clusters = k
	return opts
}

func TestClusterData_SeparatesGroups(t *testing.T) {
	opts := clusterOptions(3)
	enc, err := ProcessDataset(separatedFrame(t), opts)
	require.NoError(t, err)
	require.Equal(t, []string{"spend"}, enc.Numeric)

	lf, err := ClusterData(enc, opts)
	require.NoError(t, err)
	for i := 1; i < 20; i++ {
		assert.Equal(t, lf.Labels[0], lf.Labels[i], "row %d", i)
		assert.Equal(t, lf.Labels[20], lf.Labels[20+i], "row %d", 20+i)
	}
	assert.NotEqual(t, lf.Labels[0], lf.Labels[20])
	assert.Equal(t, lf.Labels[40], lf.Labels[41])
}

func TestClusterData_Deterministic(t *testing.T) {
	enc, err := ProcessDataset(separatedFrame(t), clusterOptions(3))
	require.NoError(t, err)
	a, err := ClusterData(enc, clusterOptions(3))
	require.NoError(t, err)
	b, err := ClusterData(enc, clusterOptions(3))
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
}

func TestClusterData_TooFewRows(t *testing.T) {
	f, err := NewFrame([]string{"x"}, [][]string{{"1"}, {"1"}})
	require.NoError(t, err)
	enc, err := ProcessDataset(f, DefaultOptions())
	require.NoError(t, err)
	_, err = ClusterData(enc, DefaultOptions())
	assert.Error(t, err)
}

func TestAnalyzeSegments_SkipsTinyClusters(t *testing.T) {
	opts := clusterOptions(3)
	enc, err := ProcessDataset(separatedFrame(t), opts)
	require.NoError(t, err)
	lf, err := ClusterData(enc, opts)
	require.NoError(t, err)

	b, err := AnalyzeSegments(lf)
	require.NoError(t, err)
	require.Len(t, b.Segments, 2, "the two-row outlier cluster is skipped")

	shares := 0.0
	for _, s := range b.Segments {
		assert.Equal(t, 20, s.Size)
		shares += s.Share

		tier := s.Categorical["tier"]
		sum := 0.0
		for _, p := range tier {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "tier table of segment %d", s.ID)

		k := s.Numeric["spend"]
		require.NotNil(t, k)
		if m := k.Mean(); !(math.Abs(m-2) < 1e-9 || math.Abs(m-102) < 1e-9) {
			t.Errorf("segment %d spend mean = %v, want 2 or 102", s.ID, m)
		}
	}
	assert.InDelta(t, 40.0/42.0, shares, 1e-9)
}

func TestBundle_SampleSegmentFollowsShares(t *testing.T) {
	b, err := NewBundle(
		&Segment{ID: 3, Share: 0.25, Categorical: map[string]map[string]float64{"g": {"a": 1}}},
		&Segment{ID: 7, Share: 0.75, Categorical: map[string]map[string]float64{"g": {"b": 1}}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, b.IDs())

	rng := rand.New(rand.NewSource(42))
	counts := map[int]int{}
	for i := 0; i < 8000; i++ {
		counts[b.SampleSegment(rng).ID]++
	}
	assert.InDelta(t, 0.75, float64(counts[7])/8000, 0.03)
}

func TestBundle_Synthesize(t *testing.T) {
	opts := clusterOptions(3)
	enc, err := ProcessDataset(separatedFrame(t), opts)
	require.NoError(t, err)
	lf, err := ClusterData(enc, opts)
	require.NoError(t, err)
	b, err := AnalyzeSegments(lf)
	require.NoError(t, err)

	f, err := b.Synthesize(rand.New(rand.NewSource(42)), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, f.Len())
	assert.Equal(t, []string{"segment", "tier", "spend"}, f.Columns)
	for i, v := range f.Column("spend") {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			t.Fatalf("row %d spend %q is not numeric", i, v)
		}
	}
}

func TestAnalyze_File(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(",tier,spend\n")
	for i := 0; i < 60; i++ {
		tier, base := "low", 10
		if i%2 == 1 {
			tier, base = "high", 500
		}
		fmt.Fprintf(&sb, "%d,%s,%d\n", i, tier, base+i%7)
	}
	path := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	opts := DefaultOptions()
	opts.Cutoff = 5
	opts.Clusters = 2
	b, err := Analyze(path, ReadOptions{DropIndex: true}, opts)
	require.NoError(t, err)
	assert.Len(t, b.Segments, 2)
	for _, s := range b.Segments {
		tier := s.Categorical["tier"]
		assert.True(t, tier["low"] == 1 || tier["high"] == 1, "segment %d mixes tiers: %v", s.ID, tier)
	}
}
