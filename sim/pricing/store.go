package pricing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Record holds the price and quantity distributions of one category path.
type Record struct {
	Category string
	Price    *Distribution
	Quantity *Distribution
}

// Store maps category paths to their records.
type Store struct {
	records map[string]*Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Put fits and stores the distributions for category.
func (s *Store) Put(category string, prices, quantities []float64) error {
	p, err := Fit(prices)
	if err != nil {
		return fmt.Errorf("price for %q: %w", category, err)
	}
	q, err := Fit(quantities)
	if err != nil {
		return fmt.Errorf("quantity for %q: %w", category, err)
	}
	s.records[category] = &Record{Category: category, Price: p, Quantity: q}
	return nil
}

// Get returns the record for category.
func (s *Store) Get(category string) (*Record, bool) {
	r, ok := s.records[category]
	return r, ok
}

// Categories returns the stored category paths, sorted.
func (s *Store) Categories() []string {
	out := make([]string, 0, len(s.records))
	for c := range s.records {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of categories.
func (s *Store) Len() int { return len(s.records) }

// Container entry suffixes. Every category has four entries named
// "<category>__<suffix>".
const (
	suffixPriceData = "price_data"
	suffixPriceType = "price_dist_type"
	suffixQtyData   = "quantity_data"
	suffixQtyType   = "quantity_dist_type"
	entrySep        = "__"
)

// Save writes the store as a zip archive of little-endian float64 sample
// arrays and kind tags.
func Save(path string, s *Store) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	zw := zip.NewWriter(f)
	for _, cat := range s.Categories() {
		r := s.records[cat]
		entries := []struct {
			suffix string
			body   []byte
		}{
			{suffixPriceData, encodeFloats(r.Price.Samples)},
			{suffixPriceType, []byte(r.Price.Kind)},
			{suffixQtyData, encodeFloats(r.Quantity.Samples)},
			{suffixQtyType, []byte(r.Quantity.Kind)},
		}
		for _, e := range entries {
			w, err := zw.Create(cat + entrySep + e.suffix)
			if err != nil {
				f.Close()
				return fmt.Errorf("writing %q: %w", cat, err)
			}
			if _, err := w.Write(e.body); err != nil {
				f.Close()
				return fmt.Errorf("writing %q: %w", cat, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalising store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a store written by Save, refitting each distribution from its
// stored samples.
func Load(path string) (*Store, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	defer zr.Close()

	entries := make(map[string][]byte, len(zr.File))
	for _, zf := range zr.File {
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("opening entry %q: %w", zf.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading entry %q: %w", zf.Name, err)
		}
		entries[zf.Name] = body
	}

	s := NewStore()
	for name := range entries {
		cat, ok := strings.CutSuffix(name, entrySep+suffixPriceData)
		if !ok {
			continue
		}
		rec := &Record{Category: cat}
		for _, part := range []struct {
			data, kind string
			dst        **Distribution
		}{
			{suffixPriceData, suffixPriceType, &rec.Price},
			{suffixQtyData, suffixQtyType, &rec.Quantity},
		} {
			raw, ok1 := entries[cat+entrySep+part.data]
			kind, ok2 := entries[cat+entrySep+part.kind]
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("category %q: missing %s entries", cat, part.data)
			}
			samples, err := decodeFloats(raw)
			if err != nil {
				return nil, fmt.Errorf("category %q %s: %w", cat, part.data, err)
			}
			d, err := restore(Kind(kind), samples)
			if err != nil {
				return nil, fmt.Errorf("category %q %s: %w", cat, part.data, err)
			}
			*part.dst = d
		}
		s.records[cat] = rec
	}
	return s, nil
}

func encodeFloats(xs []float64) []byte {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	return buf
}

func decodeFloats(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("sample array of %d bytes is not a float64 multiple", len(b))
	}
	out := make([]float64, len(b)/8)
	r := bytes.NewReader(b)
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}
