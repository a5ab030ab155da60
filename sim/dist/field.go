package dist

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// FieldKind tags which case a Field holds.
type FieldKind int

// Field kinds.
const (
	KindCategorical FieldKind = iota
	KindContinuous
)

func (k FieldKind) String() string {
	switch k {
	case KindCategorical:
		return "categorical"
	case KindContinuous:
		return "continuous"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// Field is a numeric attribute learned either as a frequency table over
// numeric labels or as a continuous density. Exactly one of the two is set.
type Field struct {
	kind    FieldKind
	table   *Categorical
	values  map[string]float64
	density *KDE
}

// CategoricalField builds a Field over a table whose keys parse as numbers.
func CategoricalField(table map[string]float64) (Field, error) {
	c, err := NewCategorical(table)
	if err != nil {
		return Field{}, err
	}
	values := make(map[string]float64, len(c.keys))
	for _, k := range c.keys {
		v, err := strconv.ParseFloat(strings.TrimSpace(k), 64)
		if err != nil {
			return Field{}, fmt.Errorf("categorical field key %q is not numeric", k)
		}
		values[k] = v
	}
	return Field{kind: KindCategorical, table: c, values: values}, nil
}

// ContinuousField wraps a fitted density.
func ContinuousField(k *KDE) Field {
	return Field{kind: KindContinuous, density: k}
}

// Kind reports which case is held.
func (f Field) Kind() FieldKind { return f.kind }

// IsZero reports whether the Field was never initialised.
func (f Field) IsZero() bool { return f.table == nil && f.density == nil }

// Sample draws a value from whichever case is held.
func (f Field) Sample(rng *rand.Rand) float64 {
	switch f.kind {
	case KindContinuous:
		return f.density.Sample(rng)
	default:
		return f.values[f.table.Sample(rng)]
	}
}

// Table returns the frequency table, or nil for a continuous field.
func (f Field) Table() map[string]float64 {
	if f.kind != KindCategorical || f.table == nil {
		return nil
	}
	return f.table.Table()
}

// Density returns the density, or nil for a categorical field.
func (f Field) Density() *KDE {
	if f.kind != KindContinuous {
		return nil
	}
	return f.density
}

// FieldRecord is the flattened persisted form of a Field. A continuous field
// keeps its raw samples and bandwidth factor so the density can be refitted.
type FieldRecord struct {
	Table map[string]float64 `json:"table,omitempty"`
	Data  []float64          `json:"data,omitempty"`
	BW    float64            `json:"bw,omitempty"`
}

// Record flattens the field.
func (f Field) Record() FieldRecord {
	if f.kind == KindContinuous {
		return FieldRecord{Data: f.density.Data(), BW: f.density.Factor()}
	}
	return FieldRecord{Table: f.Table()}
}

// FieldFromRecord restores a Field, refitting the density when present.
func FieldFromRecord(r FieldRecord) (Field, error) {
	switch {
	case len(r.Data) > 0:
		k, err := NewKDEWithFactor(r.Data, r.BW)
		if err != nil {
			return Field{}, err
		}
		return ContinuousField(k), nil
	case len(r.Table) > 0:
		return CategoricalField(r.Table)
	default:
		return Field{}, fmt.Errorf("field record has neither table nor samples")
	}
}
