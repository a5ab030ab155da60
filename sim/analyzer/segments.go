package analyzer

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/retail-sim/retail-sim/sim/dist"
)

// MinSegmentSize is the smallest cluster that gets its own distributions.
// Clusters at or below two members are skipped.
const MinSegmentSize = 3

// Segment holds the distributions learned for one cluster.
type Segment struct {
	ID          int
	Share       float64
	Size        int
	Categorical map[string]map[string]float64
	Numeric     map[string]*dist.KDE
}

// Bundle is the per-segment result of analysing one dataset.
type Bundle struct {
	Segments map[int]*Segment
	Columns  []string // categorical then numeric column names
	shares   *dist.Categorical
}

// AnalyzeSegments fits a frequency table per categorical column and a KDE
// per numeric column for every cluster with at least MinSegmentSize rows.
func AnalyzeSegments(lf *Labeled) (*Bundle, error) {
	members := make(map[int][]int)
	for row, label := range lf.Labels {
		members[label] = append(members[label], row)
	}
	b := &Bundle{Segments: make(map[int]*Segment)}
	b.Columns = append(append(b.Columns, lf.Categorical...), lf.Numeric...)

	for label := 0; label < lf.K; label++ {
		rows := members[label]
		if len(rows) < MinSegmentSize {
			logrus.Infof("skipping segment %d with %d members", label, len(rows))
			continue
		}
		seg := &Segment{
			ID:          label,
			Share:       float64(len(rows)) / float64(lf.Rows),
			Size:        len(rows),
			Categorical: make(map[string]map[string]float64, len(lf.Categorical)),
			Numeric:     make(map[string]*dist.KDE, len(lf.Numeric)),
		}
		for _, ind := range lf.Indicators {
			sum := 0.0
			for _, r := range rows {
				sum += ind.Values[r]
			}
			table := seg.Categorical[ind.Column]
			if table == nil {
				table = make(map[string]float64)
				seg.Categorical[ind.Column] = table
			}
			table[ind.Category] = sum / float64(len(rows))
		}
		for _, col := range lf.Numeric {
			values := make([]float64, 0, len(rows))
			for _, r := range rows {
				values = append(values, lf.Numbers[col][r])
			}
			k, err := dist.NewKDE(values)
			if err != nil {
				return nil, fmt.Errorf("segment %d column %q: %w", label, col, err)
			}
			seg.Numeric[col] = k
		}
		b.Segments[label] = seg
	}
	if len(b.Segments) == 0 {
		return nil, fmt.Errorf("no segment has at least %d members", MinSegmentSize)
	}
	if err := b.index(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) index() error {
	table := make(map[string]float64, len(b.Segments))
	for id, s := range b.Segments {
		table[strconv.Itoa(id)] = s.Share
	}
	c, err := dist.NewCategorical(table)
	if err != nil {
		return fmt.Errorf("segment shares: %w", err)
	}
	b.shares = c
	return nil
}

// NewBundle assembles a bundle from precomputed segments.
func NewBundle(segments ...*Segment) (*Bundle, error) {
	b := &Bundle{Segments: make(map[int]*Segment, len(segments))}
	cols := make(map[string]struct{})
	for _, s := range segments {
		if _, dup := b.Segments[s.ID]; dup {
			return nil, fmt.Errorf("duplicate segment id %d", s.ID)
		}
		b.Segments[s.ID] = s
		for c := range s.Categorical {
			cols[c] = struct{}{}
		}
		for c := range s.Numeric {
			cols[c] = struct{}{}
		}
	}
	for c := range cols {
		b.Columns = append(b.Columns, c)
	}
	sort.Strings(b.Columns)
	if err := b.index(); err != nil {
		return nil, err
	}
	return b, nil
}

// IDs returns segment ids in ascending order.
func (b *Bundle) IDs() []int {
	ids := make([]int, 0, len(b.Segments))
	for id := range b.Segments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SampleSegment draws a segment with probability proportional to its share.
func (b *Bundle) SampleSegment(rng *rand.Rand) *Segment {
	id, _ := strconv.Atoi(b.shares.Sample(rng))
	return b.Segments[id]
}

// Preferences extracts one categorical column across segments.
func (b *Bundle) Preferences(column string) map[int]map[string]float64 {
	out := make(map[int]map[string]float64, len(b.Segments))
	for id, s := range b.Segments {
		if t, ok := s.Categorical[column]; ok {
			out[id] = t
		}
	}
	return out
}

// SetPreferences replaces one categorical column across segments.
func (b *Bundle) SetPreferences(column string, prefs map[int]map[string]float64) {
	for id, t := range prefs {
		if s, ok := b.Segments[id]; ok {
			s.Categorical[column] = t
		}
	}
}

// Synthesize generates n rows resembling the source dataset: a segment is
// drawn by share, each categorical column by its frequency table and each
// numeric column by resampling its KDE.
func (b *Bundle) Synthesize(rng *rand.Rand, n int) (*Frame, error) {
	samplers := make(map[int]map[string]*dist.Categorical, len(b.Segments))
	for id, s := range b.Segments {
		samplers[id] = make(map[string]*dist.Categorical, len(s.Categorical))
		for col, t := range s.Categorical {
			c, err := dist.NewCategorical(t)
			if err != nil {
				return nil, fmt.Errorf("segment %d column %q: %w", id, col, err)
			}
			samplers[id][col] = c
		}
	}
	header := append([]string{"segment"}, b.Columns...)
	records := make([][]string, n)
	for i := range records {
		s := b.SampleSegment(rng)
		row := make([]string, len(header))
		row[0] = strconv.Itoa(s.ID)
		for j, col := range b.Columns {
			if c, ok := samplers[s.ID][col]; ok {
				row[j+1] = c.Sample(rng)
			} else if k, ok := s.Numeric[col]; ok {
				row[j+1] = strconv.FormatFloat(k.Sample(rng), 'f', 2, 64)
			}
		}
		records[i] = row
	}
	return NewFrame(header, records)
}

// Analyze runs the full pipeline over a CSV file: read, classify, cluster,
// fit per-segment distributions.
func Analyze(path string, read ReadOptions, opts Options) (*Bundle, error) {
	f, err := ReadCSVFile(path, read)
	if err != nil {
		return nil, err
	}
	enc, err := ProcessDataset(f, opts)
	if err != nil {
		return nil, fmt.Errorf("processing %s: %w", path, err)
	}
	lf, err := ClusterData(enc, opts)
	if err != nil {
		return nil, fmt.Errorf("clustering %s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{
		"path":        path,
		"rows":        enc.Rows,
		"categorical": len(enc.Categorical),
		"numeric":     len(enc.Numeric),
		"ignored":     len(enc.ID) + len(enc.Text),
	}).Info("dataset clustered")
	return AnalyzeSegments(lf)
}
