package agent

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"

	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/dist"
)

// ErrSchema means a segment does not carry exactly the attributes a customer
// variant is built from.
var ErrSchema = errors.New("segment schema mismatch")

// OpenAgeLimit bounds ages drawn from an open range such as "55+".
const OpenAgeLimit = 80

// attributes reads a fixed set of attributes out of a segment. Each expected
// key must appear exactly once across the categorical and numeric maps;
// columns the variant does not use are ignored.
type attributes struct {
	seg  *analyzer.Segment
	errs []error
}

func (a *attributes) table(key string) map[string]float64 {
	t, inCat := a.seg.Categorical[key]
	_, inNum := a.seg.Numeric[key]
	switch {
	case inCat && inNum:
		a.errs = append(a.errs, fmt.Errorf("%w: %q is both categorical and numeric", ErrSchema, key))
	case !inCat:
		a.errs = append(a.errs, fmt.Errorf("%w: missing categorical %q", ErrSchema, key))
	}
	return t
}

// draw samples one label from a categorical attribute.
func (a *attributes) draw(key string, rng *rand.Rand) string {
	t := a.table(key)
	if t == nil {
		return ""
	}
	c, err := dist.NewCategorical(t)
	if err != nil {
		a.errs = append(a.errs, fmt.Errorf("%w: %q: %v", ErrSchema, key, err))
		return ""
	}
	return c.Sample(rng)
}

// categorical returns a categorical attribute as a sampler.
func (a *attributes) categorical(key string) *dist.Categorical {
	t := a.table(key)
	if t == nil {
		return nil
	}
	c, err := dist.NewCategorical(t)
	if err != nil {
		a.errs = append(a.errs, fmt.Errorf("%w: %q: %v", ErrSchema, key, err))
	}
	return c
}

// field returns a numeric attribute learned either as a table or a density.
func (a *attributes) field(key string) dist.Field {
	t, inCat := a.seg.Categorical[key]
	k, inNum := a.seg.Numeric[key]
	switch {
	case inCat && inNum:
		a.errs = append(a.errs, fmt.Errorf("%w: %q is both categorical and numeric", ErrSchema, key))
	case inNum:
		return dist.ContinuousField(k)
	case inCat:
		f, err := dist.CategoricalField(t)
		if err != nil {
			a.errs = append(a.errs, fmt.Errorf("%w: %q: %v", ErrSchema, key, err))
		}
		return f
	default:
		a.errs = append(a.errs, fmt.Errorf("%w: missing %q", ErrSchema, key))
	}
	return dist.Field{}
}

func (a *attributes) err() error { return errors.Join(a.errs...) }

var digits = regexp.MustCompile(`\d+`)

// drawAge turns an age label into a whole age: "26-35" draws uniformly from
// [26, 35), "55+" from [55, OpenAgeLimit), and a bare number is taken as is.
func drawAge(label string, rng *rand.Rand) (int, error) {
	nums := digits.FindAllString(label, -1)
	switch len(nums) {
	case 1:
		lo, _ := strconv.Atoi(nums[0])
		if _, err := strconv.Atoi(label); err == nil {
			return lo, nil
		}
		return randRange(lo, OpenAgeLimit, rng), nil
	case 2:
		lo, _ := strconv.Atoi(nums[0])
		hi, _ := strconv.Atoi(nums[1])
		return randRange(lo, hi, rng), nil
	default:
		return 0, fmt.Errorf("%w: age label %q", ErrSchema, label)
	}
}

func randRange(lo, hi int, rng *rand.Rand) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo)
}
