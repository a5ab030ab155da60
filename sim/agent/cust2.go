package agent

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/dist"
)

// Cust2 attribute columns.
const (
	Cust2Preference = "product_line"
	Cust2Quantity   = "quantity"
	Cust2UnitPrice  = "unit_price"
	Cust2Date       = "date"
)

// Cust2Demographics are the fixed categorical attributes of a Cust2.
var Cust2Demographics = []string{"branch", "city", "customer_type", "gender", "payment_method"}

const (
	// Cust2SubstituteProb is the chance a Cust2 buys another in-stock
	// product when its pick is sold out.
	Cust2SubstituteProb = 0.6
	// VisitDays is how many of its most likely days of the month a Cust2
	// shops on.
	VisitDays = 3
)

// Cust2 is a shopper learned from the supermarket transaction dataset. It
// visits on its most frequent historical days of the month.
type Cust2 struct {
	shopper
	Branch        string
	City          string
	CustomerType  string
	Gender        string
	PaymentMethod string

	quantity  dist.Field
	unitPrice dist.Field
	days      *dist.Categorical
	visitDays map[int]bool
}

var _ Customer = (*Cust2)(nil)

// NewCust2 draws a segment from b and instantiates a customer from it.
func NewCust2(id int64, b *analyzer.Bundle, rng *rand.Rand) (*Cust2, error) {
	seg := b.SampleSegment(rng)
	attrs := &attributes{seg: seg}
	c := &Cust2{
		shopper: shopper{
			id:      id,
			segment: seg.ID,
			prefs:   attrs.categorical(Cust2Preference),
			history: make(History),
		},
		Branch:        attrs.draw("branch", rng),
		City:          attrs.draw("city", rng),
		CustomerType:  attrs.draw("customer_type", rng),
		Gender:        attrs.draw("gender", rng),
		PaymentMethod: attrs.draw("payment_method", rng),
		quantity:      attrs.field(Cust2Quantity),
		unitPrice:     attrs.field(Cust2UnitPrice),
		days:          attrs.categorical(Cust2Date),
	}
	if err := attrs.err(); err != nil {
		return nil, fmt.Errorf("cust2 %d from segment %d: %w", id, seg.ID, err)
	}
	if err := c.indexDays(); err != nil {
		return nil, err
	}
	c.budget = c.nextBudget(rng, func() float64 { return c.learnedBudget(rng) })
	return c, nil
}

func (c *Cust2) indexDays() error {
	c.visitDays = make(map[int]bool, VisitDays)
	for _, d := range c.days.Top(VisitDays) {
		day, err := strconv.Atoi(d)
		if err != nil {
			return fmt.Errorf("%w: cust2 %d day-of-month label %q", ErrSchema, c.id, d)
		}
		c.visitDays[day] = true
	}
	return nil
}

func (c *Cust2) learnedBudget(rng *rand.Rand) float64 {
	return c.unitPrice.Sample(rng) * float64(sampleQuantity(c.quantity, rng))
}

// Kind implements Agent.
func (c *Cust2) Kind() Kind { return KindCust2 }

// VisitsOn reports whether the customer shops on date.
func (c *Cust2) VisitsOn(date time.Time) bool { return c.visitDays[date.Day()] }

// Step implements Customer. The target unit price is drawn from the learned
// unit price distribution.
func (c *Cust2) Step(date time.Time, rng *rand.Rand, catalog Catalog) (Order, bool) {
	c.budget = c.nextBudget(rng, func() float64 { return c.learnedBudget(rng) })
	if !c.VisitsOn(date) {
		return Order{}, false
	}
	category := c.prefs.Sample(rng)
	return c.buy(trip{
		category:       category,
		products:       catalog.ProductsFor(category),
		quantity:       sampleQuantity(c.quantity, rng),
		targetPrice:    c.unitPrice.Sample(rng),
		substituteProb: Cust2SubstituteProb,
	}, rng, date)
}

// Cust2Record is the flattened persisted form of a Cust2.
type Cust2Record struct {
	Type            Kind               `json:"type"`
	ID              int64              `json:"unique_id"`
	SegmentID       int                `json:"segment_id"`
	Branch          string             `json:"branch"`
	City            string             `json:"city"`
	CustomerType    string             `json:"customer_type"`
	Gender          string             `json:"gender"`
	PaymentMethod   string             `json:"payment_method"`
	ProductLine     map[string]float64 `json:"product_line"`
	Quantity        dist.FieldRecord   `json:"quantity"`
	UnitPrice       dist.FieldRecord   `json:"unit_price"`
	Date            map[string]float64 `json:"date"`
	Budget          float64            `json:"budget"`
	PurchaseHistory History            `json:"purchase_history"`
}

// Record flattens c.
func (c *Cust2) Record() Cust2Record {
	return Cust2Record{
		Type:            KindCust2,
		ID:              c.id,
		SegmentID:       c.segment,
		Branch:          c.Branch,
		City:            c.City,
		CustomerType:    c.CustomerType,
		Gender:          c.Gender,
		PaymentMethod:   c.PaymentMethod,
		ProductLine:     c.prefs.Table(),
		Quantity:        c.quantity.Record(),
		UnitPrice:       c.unitPrice.Record(),
		Date:            c.days.Table(),
		Budget:          c.budget,
		PurchaseHistory: c.history.clone(),
	}
}

// RestoreCust2 rebuilds a Cust2 from its record.
func RestoreCust2(r Cust2Record) (*Cust2, error) {
	prefs, err := dist.NewCategorical(r.ProductLine)
	if err != nil {
		return nil, fmt.Errorf("cust2 %d preferences: %w", r.ID, err)
	}
	quantity, err := dist.FieldFromRecord(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("cust2 %d quantity: %w", r.ID, err)
	}
	unitPrice, err := dist.FieldFromRecord(r.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("cust2 %d unit price: %w", r.ID, err)
	}
	days, err := dist.NewCategorical(r.Date)
	if err != nil {
		return nil, fmt.Errorf("cust2 %d date: %w", r.ID, err)
	}
	history := r.PurchaseHistory
	if history == nil {
		history = make(History)
	}
	c := &Cust2{
		shopper: shopper{
			id:      r.ID,
			segment: r.SegmentID,
			prefs:   prefs,
			history: history,
			budget:  r.Budget,
		},
		Branch:        r.Branch,
		City:          r.City,
		CustomerType:  r.CustomerType,
		Gender:        r.Gender,
		PaymentMethod: r.PaymentMethod,
		quantity:      quantity,
		unitPrice:     unitPrice,
		days:          days,
	}
	if err := c.indexDays(); err != nil {
		return nil, err
	}
	return c, nil
}
