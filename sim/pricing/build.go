package pricing

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/taxonomy"
)

// Observation is one priced sale or listing resolved onto a category path.
type Observation struct {
	Category  string
	UnitPrice float64
	Quantity  float64 // NaN when unknown
}

// SourceOptions controls how a raw frame is turned into observations.
type SourceOptions struct {
	// SynthesizeQuantity fills a missing quantity column with uniform draws
	// in [1, 99], as product listings carry no sale quantity.
	SynthesizeQuantity bool
	RNG                *rand.Rand
}

// Observations finds the category, price and quantity columns of f by name
// and resolves each row's raw category label through tax. Rows whose label
// cannot be resolved or whose price does not parse are dropped.
func Observations(f *analyzer.Frame, tax *taxonomy.Taxonomy, opts SourceOptions) ([]Observation, error) {
	catCol := findColumn(f.Columns, "categor", "product_line")
	priceCol := findColumn(f.Columns, "price", "unit")
	qtyCol := findColumn(f.Columns, "quantity")
	if catCol == "" || priceCol == "" {
		return nil, fmt.Errorf("source needs category and price columns, have %v", f.Columns)
	}
	if qtyCol == "" && opts.SynthesizeQuantity && opts.RNG == nil {
		return nil, fmt.Errorf("synthesizing quantities requires an rng")
	}

	resolved := make(map[string]string)
	out := make([]Observation, 0, f.Len())
	dropped := 0
	for i := 0; i < f.Len(); i++ {
		raw := f.Column(catCol)[i]
		path, ok := resolved[raw]
		if !ok {
			if n, found := tax.Resolve(raw); found {
				path = n.Path
			}
			resolved[raw] = path
		}
		price, err := strconv.ParseFloat(f.Column(priceCol)[i], 64)
		if path == "" || err != nil {
			dropped++
			continue
		}
		qty := math.NaN()
		switch {
		case qtyCol != "":
			if q, err := strconv.ParseFloat(f.Column(qtyCol)[i], 64); err == nil {
				qty = q
			}
		case opts.SynthesizeQuantity:
			qty = float64(1 + opts.RNG.Intn(99))
		}
		out = append(out, Observation{Category: path, UnitPrice: price, Quantity: qty})
	}
	if dropped > 0 {
		logrus.Debugf("dropped %d of %d rows without a resolvable category or price", dropped, f.Len())
	}
	return out, nil
}

func findColumn(columns []string, substrings ...string) string {
	for _, c := range columns {
		for _, s := range substrings {
			if strings.Contains(c, s) {
				return c
			}
		}
	}
	return ""
}

// Build groups observations by category and fits every record.
func Build(obs []Observation) (*Store, error) {
	prices := make(map[string][]float64)
	quantities := make(map[string][]float64)
	for _, o := range obs {
		prices[o.Category] = append(prices[o.Category], o.UnitPrice)
		if !math.IsNaN(o.Quantity) {
			quantities[o.Category] = append(quantities[o.Category], o.Quantity)
		}
	}
	s := NewStore()
	for cat, p := range prices {
		if err := s.Put(cat, p, quantities[cat]); err != nil {
			return nil, err
		}
	}
	logrus.Infof("price store built: %d categories from %d observations", s.Len(), len(obs))
	return s, nil
}

// Summary is one row of the price table.
type Summary struct {
	Category     string
	Count        int
	AvgPrice     float64
	StdPrice     float64
	AvgQuantity  float64
	StdQuantity  float64
	PriceKind    Kind
	QuantityKind Kind
}

// Table summarises every category, sorted by path.
func (s *Store) Table() []Summary {
	out := make([]Summary, 0, s.Len())
	for _, cat := range s.Categories() {
		r := s.records[cat]
		row := Summary{
			Category:     cat,
			Count:        len(r.Price.Samples),
			PriceKind:    r.Price.Kind,
			QuantityKind: r.Quantity.Kind,
		}
		row.AvgPrice, row.StdPrice = moments(r.Price)
		row.AvgQuantity, row.StdQuantity = moments(r.Quantity)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func moments(d *Distribution) (float64, float64) {
	if len(d.Samples) < 2 {
		return d.Mean, d.Std
	}
	return stat.MeanStdDev(d.Samples, nil)
}
