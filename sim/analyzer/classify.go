package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrIncompleteClassification means some column was not assigned a kind.
	ErrIncompleteClassification = errors.New("column classification incomplete")
	// ErrMalformedDate means a detected datetime column holds an unparseable value.
	ErrMalformedDate = errors.New("malformed datetime value")
)

// ColumnKind is the role a column plays in segmentation.
type ColumnKind int

// Column kinds, in classification precedence order.
const (
	KindID ColumnKind = iota
	KindDatetime
	KindCategorical
	KindNumeric
	KindText
)

func (k ColumnKind) String() string {
	return [...]string{"id", "datetime", "categorical", "numeric", "text"}[k]
}

// Options tunes dataset processing and clustering.
type Options struct {
	Cutoff        int      // max distinct values for a categorical column
	IDHints       []string // substrings marking identifier columns
	DateSample    int      // leading values inspected for date detection
	DateThreshold float64  // fraction of sampled values that must parse
	Clusters      int
	Seed          int64
	MaxIter       int
}

// DefaultOptions mirrors the settings the retail datasets were tuned with.
func DefaultOptions() Options {
	return Options{
		Cutoff:        50,
		IDHints:       []string{"sku", "id"},
		DateSample:    100,
		DateThreshold: 0.9,
		Clusters:      5,
		Seed:          42,
		MaxIter:       300,
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"1/2/2006 15:04",
	"20060102",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// Indicator is one one-hot column: 1 where Column == Category.
type Indicator struct {
	Column   string
	Category string
	Values   []float64
}

// Encoded is a classified, one-hot encoded dataset.
type Encoded struct {
	Rows        int
	Kinds       map[string]ColumnKind
	ID          []string
	Datetime    []string
	Categorical []string // includes calendar components split from datetimes
	Numeric     []string
	Text        []string
	Indicators  []Indicator
	Numbers     map[string][]float64 // NaN marks a missing cell
	raw         map[string][]string
}

// Raw returns the cells of a retained column (id, text or categorical).
func (e *Encoded) Raw(column string) []string { return e.raw[column] }

// ProcessDataset classifies every column of f and one-hot encodes the
// categorical ones. Classification order: identifier, datetime (split into
// year, month and day-of-month categoricals), categorical, numeric, text.
func ProcessDataset(f *Frame, opts Options) (*Encoded, error) {
	enc := &Encoded{
		Rows:    f.Len(),
		Kinds:   make(map[string]ColumnKind),
		Numbers: make(map[string][]float64),
		raw:     make(map[string][]string),
	}
	for _, col := range f.Columns {
		cells := f.Column(col)
		distinct := distinctCount(cells)
		_, numeric := parseNumeric(cells)

		switch {
		case matchesHint(col, opts.IDHints) || distinct == f.Len():
			enc.ID = append(enc.ID, col)
			enc.Kinds[col] = KindID
			enc.raw[col] = cells
		case !numeric && looksLikeDates(cells, opts.DateSample, opts.DateThreshold):
			parts, err := splitDates(col, cells)
			if err != nil {
				return nil, err
			}
			enc.Datetime = append(enc.Datetime, col)
			enc.Kinds[col] = KindDatetime
			for _, name := range []string{"year", "month", "date"} {
				derived := name
				if enc.Datetime[0] != col || (f.Has(name) && name != col) {
					derived = col + "_" + name
				}
				enc.Categorical = append(enc.Categorical, derived)
				enc.Kinds[derived] = KindCategorical
				enc.raw[derived] = parts[name]
			}
		case distinct <= opts.Cutoff:
			enc.Categorical = append(enc.Categorical, col)
			enc.Kinds[col] = KindCategorical
			enc.raw[col] = cells
		case numeric:
			values, _ := parseNumeric(cells)
			enc.Numeric = append(enc.Numeric, col)
			enc.Kinds[col] = KindNumeric
			enc.Numbers[col] = values
		default:
			enc.Text = append(enc.Text, col)
			enc.Kinds[col] = KindText
			enc.raw[col] = cells
		}
	}

	total := 0
	for _, col := range f.Columns {
		if _, ok := enc.Kinds[col]; ok {
			total++
		}
	}
	if total != len(f.Columns) {
		return nil, fmt.Errorf("%w: %d of %d columns", ErrIncompleteClassification, total, len(f.Columns))
	}

	for _, col := range enc.Categorical {
		enc.Indicators = append(enc.Indicators, oneHot(col, enc.raw[col])...)
	}
	return enc, nil
}

func matchesHint(col string, hints []string) bool {
	lower := strings.ToLower(col)
	for _, h := range hints {
		if h != "" && strings.Contains(lower, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func distinctCount(cells []string) int {
	seen := make(map[string]struct{})
	for _, c := range cells {
		if c != "" {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}

// parseNumeric reports whether every non-empty cell parses as a float.
func parseNumeric(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	seen := false
	for i, c := range cells {
		if c == "" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
		seen = true
	}
	return out, seen
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func looksLikeDates(cells []string, sample int, threshold float64) bool {
	checked, parsed := 0, 0
	for _, c := range cells {
		if checked == sample {
			break
		}
		if c == "" {
			continue
		}
		checked++
		if _, ok := parseDate(c); ok {
			parsed++
		}
	}
	return checked > 0 && float64(parsed)/float64(checked) > threshold
}

func splitDates(col string, cells []string) (map[string][]string, error) {
	parts := map[string][]string{
		"year":  make([]string, len(cells)),
		"month": make([]string, len(cells)),
		"date":  make([]string, len(cells)),
	}
	for i, c := range cells {
		if c == "" {
			continue
		}
		t, ok := parseDate(c)
		if !ok {
			return nil, fmt.Errorf("%w: column %q row %d value %q", ErrMalformedDate, col, i+1, c)
		}
		parts["year"][i] = strconv.Itoa(t.Year())
		parts["month"][i] = strconv.Itoa(int(t.Month()))
		parts["date"][i] = strconv.Itoa(t.Day())
	}
	return parts, nil
}

func oneHot(col string, cells []string) []Indicator {
	cats := make(map[string]struct{})
	for _, c := range cells {
		if c != "" {
			cats[c] = struct{}{}
		}
	}
	names := make([]string, 0, len(cats))
	for c := range cats {
		names = append(names, c)
	}
	sort.Strings(names)

	out := make([]Indicator, 0, len(names))
	for _, name := range names {
		values := make([]float64, len(cells))
		for i, c := range cells {
			if c == name {
				values[i] = 1
			}
		}
		out = append(out, Indicator{Column: col, Category: name, Values: values})
	}
	return out
}
