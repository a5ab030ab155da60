package agent

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/dist"
)

// Cust1 attribute columns.
const (
	Cust1Preference = "product_category"
	Cust1Spend      = "purchase"
)

// Cust1Demographics are the fixed categorical attributes of a Cust1.
var Cust1Demographics = []string{"age", "gender", "city_category", "stay_in_current_city_years", "marital_status"}

const (
	// Cust1SubstituteProb is the chance a Cust1 buys another in-stock
	// product when its pick is sold out.
	Cust1SubstituteProb = 0.8
	// VisitProbStd spreads per-customer visit probabilities around the
	// configured mean.
	VisitProbStd = 0.025
)

// DefaultCust1Quantity is the basket size table for Cust1, whose source
// dataset records no quantities: uniform over 1..9.
func DefaultCust1Quantity() dist.Field {
	table := make(map[string]float64, 9)
	for q := 1; q <= 9; q++ {
		table[strconv.Itoa(q)] = 1
	}
	f, _ := dist.CategoricalField(table)
	return f
}

// Cust1 is a shopper learned from the demographic sales dataset. It visits
// with a fixed per-customer probability.
type Cust1 struct {
	shopper
	Age                    int
	Gender                 string
	CityCategory           string
	StayInCurrentCityYears string
	MaritalStatus          string

	spend     dist.Field
	quantity  dist.Field
	visitProb float64
}

var _ Customer = (*Cust1)(nil)

// NewCust1 draws a segment from b and instantiates a customer from it.
// visitMean is the population mean daily visit probability.
func NewCust1(id int64, b *analyzer.Bundle, visitMean float64, rng *rand.Rand) (*Cust1, error) {
	seg := b.SampleSegment(rng)
	attrs := &attributes{seg: seg}
	c := &Cust1{
		shopper: shopper{
			id:      id,
			segment: seg.ID,
			prefs:   attrs.categorical(Cust1Preference),
			history: make(History),
		},
		Gender:                 attrs.draw("gender", rng),
		CityCategory:           attrs.draw("city_category", rng),
		StayInCurrentCityYears: attrs.draw("stay_in_current_city_years", rng),
		MaritalStatus:          attrs.draw("marital_status", rng),
		spend:                  attrs.field(Cust1Spend),
		quantity:               DefaultCust1Quantity(),
		visitProb:              math.Min(1, math.Max(0, visitMean+rng.NormFloat64()*VisitProbStd)),
	}
	if label := attrs.draw("age", rng); label != "" {
		age, err := drawAge(label, rng)
		if err != nil {
			return nil, err
		}
		c.Age = age
	}
	if err := attrs.err(); err != nil {
		return nil, fmt.Errorf("cust1 %d from segment %d: %w", id, seg.ID, err)
	}
	c.budget = c.nextBudget(rng, func() float64 { return c.spend.Sample(rng) })
	return c, nil
}

// Kind implements Agent.
func (c *Cust1) Kind() Kind { return KindCust1 }

// VisitProb is the customer's daily visit probability.
func (c *Cust1) VisitProb() float64 { return c.visitProb }

// Step implements Customer. The target unit price is the budget split over a
// drawn quantity, perturbed by unit normal noise.
func (c *Cust1) Step(date time.Time, rng *rand.Rand, catalog Catalog) (Order, bool) {
	c.budget = c.nextBudget(rng, func() float64 { return c.spend.Sample(rng) })
	if rng.Float64() >= c.visitProb {
		return Order{}, false
	}
	category := c.prefs.Sample(rng)
	qty := sampleQuantity(c.quantity, rng)
	return c.buy(trip{
		category:       category,
		products:       catalog.ProductsFor(category),
		quantity:       qty,
		targetPrice:    c.budget/float64(qty) + rng.NormFloat64(),
		substituteProb: Cust1SubstituteProb,
	}, rng, date)
}

// Cust1Record is the flattened persisted form of a Cust1.
type Cust1Record struct {
	Type                   Kind               `json:"type"`
	ID                     int64              `json:"unique_id"`
	SegmentID              int                `json:"segment_id"`
	Age                    int                `json:"age"`
	Gender                 string             `json:"gender"`
	CityCategory           string             `json:"city_category"`
	StayInCurrentCityYears string             `json:"stay_in_current_city_years"`
	MaritalStatus          string             `json:"marital_status"`
	ProductCategory        map[string]float64 `json:"product_category"`
	Purchase               dist.FieldRecord   `json:"purchase"`
	Quantity               dist.FieldRecord   `json:"quantity"`
	VisitProb              float64            `json:"visit_prob"`
	Budget                 float64            `json:"budget"`
	PurchaseHistory        History            `json:"purchase_history"`
}

// Record flattens c.
func (c *Cust1) Record() Cust1Record {
	return Cust1Record{
		Type:                   KindCust1,
		ID:                     c.id,
		SegmentID:              c.segment,
		Age:                    c.Age,
		Gender:                 c.Gender,
		CityCategory:           c.CityCategory,
		StayInCurrentCityYears: c.StayInCurrentCityYears,
		MaritalStatus:          c.MaritalStatus,
		ProductCategory:        c.prefs.Table(),
		Purchase:               c.spend.Record(),
		Quantity:               c.quantity.Record(),
		VisitProb:              c.visitProb,
		Budget:                 c.budget,
		PurchaseHistory:        c.history.clone(),
	}
}

// RestoreCust1 rebuilds a Cust1 from its record, refitting densities from
// the stored samples.
func RestoreCust1(r Cust1Record) (*Cust1, error) {
	prefs, err := dist.NewCategorical(r.ProductCategory)
	if err != nil {
		return nil, fmt.Errorf("cust1 %d preferences: %w", r.ID, err)
	}
	spend, err := dist.FieldFromRecord(r.Purchase)
	if err != nil {
		return nil, fmt.Errorf("cust1 %d purchase: %w", r.ID, err)
	}
	quantity := DefaultCust1Quantity()
	if len(r.Quantity.Table) > 0 || len(r.Quantity.Data) > 0 {
		if quantity, err = dist.FieldFromRecord(r.Quantity); err != nil {
			return nil, fmt.Errorf("cust1 %d quantity: %w", r.ID, err)
		}
	}
	history := r.PurchaseHistory
	if history == nil {
		history = make(History)
	}
	return &Cust1{
		shopper: shopper{
			id:      r.ID,
			segment: r.SegmentID,
			prefs:   prefs,
			history: history,
			budget:  r.Budget,
		},
		Age:                    r.Age,
		Gender:                 r.Gender,
		CityCategory:           r.CityCategory,
		StayInCurrentCityYears: r.StayInCurrentCityYears,
		MaritalStatus:          r.MaritalStatus,
		spend:                  spend,
		quantity:               quantity,
		visitProb:              r.VisitProb,
	}, nil
}
