// Package analyzer learns per-segment distributions from tabular retail
// datasets: column classification, one-hot encoding, k-means segmentation and
// per-segment frequency tables and kernel densities.
package analyzer

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
)

// Frame is a column-oriented table of raw string cells.
type Frame struct {
	Columns []string
	cells   map[string][]string
	rows    int
}

// NewFrame builds a frame from a header and row-major records. Column names
// are normalised: trimmed, lowercased, inner spaces replaced by underscores.
func NewFrame(header []string, records [][]string) (*Frame, error) {
	f := &Frame{cells: make(map[string][]string, len(header)), rows: len(records)}
	for _, h := range header {
		name := NormalizeName(h)
		if name == "" {
			return nil, fmt.Errorf("empty column name in header %v", header)
		}
		if _, dup := f.cells[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		f.Columns = append(f.Columns, name)
		f.cells[name] = make([]string, len(records))
	}
	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i+1, len(rec), len(header))
		}
		for j, name := range f.Columns {
			f.cells[name][i] = strings.TrimSpace(rec[j])
		}
	}
	return f, nil
}

// NormalizeName canonicalises a column header.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// Len returns the row count.
func (f *Frame) Len() int { return f.rows }

// Column returns the cells of a column, or nil if absent.
func (f *Frame) Column(name string) []string { return f.cells[name] }

// Has reports whether the column exists.
func (f *Frame) Has(name string) bool {
	_, ok := f.cells[name]
	return ok
}

// Row returns row i in column order.
func (f *Frame) Row(i int) []string {
	out := make([]string, len(f.Columns))
	for j, c := range f.Columns {
		out[j] = f.cells[c][i]
	}
	return out
}

// ReadOptions controls CSV ingestion.
type ReadOptions struct {
	// MaxRows down-samples larger files uniformly without replacement. Zero
	// keeps every row.
	MaxRows int
	// DropIndex drops the first column, which holds a positional index.
	DropIndex bool
	// RNG drives down-sampling; required when MaxRows is set.
	RNG *rand.Rand
}

// ReadCSV parses a CSV stream with a header row.
func ReadCSV(r io.Reader, opts ReadOptions) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}

	if opts.DropIndex {
		header = header[1:]
		for i := range records {
			if len(records[i]) > 0 {
				records[i] = records[i][1:]
			}
		}
	}
	if opts.MaxRows > 0 && len(records) > opts.MaxRows {
		if opts.RNG == nil {
			return nil, fmt.Errorf("down-sampling %d rows requires an rng", len(records))
		}
		records = sampleRows(records, opts.MaxRows, opts.RNG)
	}
	return NewFrame(header, records)
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string, opts ReadOptions) (*Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer fh.Close()
	f, err := ReadCSV(fh, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}

// WriteCSV writes f with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	for i := 0; i < f.rows; i++ {
		if err := cw.Write(f.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// sampleRows keeps n rows chosen uniformly without replacement, preserving
// their original order.
func sampleRows(records [][]string, n int, rng *rand.Rand) [][]string {
	idx := rng.Perm(len(records))[:n]
	keep := make([]bool, len(records))
	for _, i := range idx {
		keep[i] = true
	}
	out := make([][]string, 0, n)
	for i, rec := range records {
		if keep[i] {
			out = append(out, rec)
		}
	}
	return out
}
