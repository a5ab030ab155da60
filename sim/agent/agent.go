// Package agent implements the simulated population: two customer variants
// learned from different datasets, and products with an EOQ restock policy.
package agent

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retail-sim/retail-sim/sim/dist"
)

// Kind names an agent namespace. Identifier ranges are allocated per kind.
type Kind string

// Agent kinds.
const (
	KindCust1   Kind = "Cust1"
	KindCust2   Kind = "Cust2"
	KindProduct Kind = "Product"
)

// Kinds lists every agent kind in allocation order.
var Kinds = []Kind{KindCust1, KindCust2, KindProduct}

// DateLayout formats simulated dates in records and exports.
const DateLayout = "20060102"

// FormatDate renders t with DateLayout.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// ParseDate parses a DateLayout string.
func ParseDate(s string) (time.Time, error) { return time.Parse(DateLayout, s) }

const (
	// MinHistory is the purchase count from which a customer budgets from its
	// own spending instead of the learned distribution.
	MinHistory = 5
	// BudgetSlack is how far over budget a basket may go before the
	// quantity is clamped to one unit.
	BudgetSlack = 5.0
)

// Agent is anything with an identity in the population.
type Agent interface {
	ID() int64
	Kind() Kind
}

// Catalog resolves the candidate products for a shopper's chosen category.
type Catalog interface {
	ProductsFor(category string) []*Product
}

// Customer is a shopper stepped once per simulated day.
type Customer interface {
	Agent
	Segment() int
	Budget() float64
	History() History
	// Step recomputes the budget, decides whether to visit and, if so,
	// attempts one purchase. ok is false when nothing was bought.
	Step(date time.Time, rng *rand.Rand, catalog Catalog) (order Order, ok bool)
}

// Purchase is one history entry.
type Purchase struct {
	ProductID int64   `json:"product_id"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Date      string  `json:"date"`
}

// History maps a category to its purchases in order. Entries are only
// appended.
type History map[string][]Purchase

// Len counts entries across categories.
func (h History) Len() int {
	n := 0
	for _, ps := range h {
		n += len(ps)
	}
	return n
}

// Categories returns the categories with at least one purchase, sorted.
func (h History) Categories() []string {
	out := make([]string, 0, len(h))
	for c := range h {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Spend lists price*quantity of every entry, ordered by category.
func (h History) Spend() []float64 {
	var out []float64
	for _, c := range h.Categories() {
		for _, p := range h[c] {
			out = append(out, p.UnitPrice*float64(p.Quantity))
		}
	}
	return out
}

func (h History) clone() History {
	out := make(History, len(h))
	for c, ps := range h {
		out[c] = append([]Purchase(nil), ps...)
	}
	return out
}

// Order is the demand a customer places on one product in a day.
type Order struct {
	CustomerID int64
	ProductID  int64
	Category   string
	UnitPrice  float64
	Quantity   int
}

// Total is the order value.
func (o Order) Total() float64 { return o.UnitPrice * float64(o.Quantity) }

// shopper carries the state and purchase rules both customer variants share.
type shopper struct {
	id      int64
	segment int
	prefs   *dist.Categorical
	history History
	budget  float64
}

func (s *shopper) ID() int64 { return s.id }

// Segment returns the segment the customer was drawn from.
func (s *shopper) Segment() int { return s.segment }

// Budget returns the budget computed at the latest step.
func (s *shopper) Budget() float64 { return s.budget }

// History returns the live purchase history.
func (s *shopper) History() History { return s.history }

// Preferences returns the normalised category preference table.
func (s *shopper) Preferences() map[string]float64 { return s.prefs.Table() }

// nextBudget draws from the learned distribution until MinHistory entries
// exist, then from a KDE over the customer's own spending. A degenerate
// spending history falls back to the learned distribution.
func (s *shopper) nextBudget(rng *rand.Rand, learned func() float64) float64 {
	if s.history.Len() >= MinHistory {
		if k, err := dist.NewKDE(s.history.Spend()); err == nil {
			return k.Sample(rng)
		}
	}
	return learned()
}

// trip is one day's shopping intent.
type trip struct {
	category       string
	products       []*Product
	quantity       int
	targetPrice    float64
	substituteProb float64
}

// buy picks the product priced closest to the target, substitutes or
// abandons on a stockout, clamps quantity to stock and applies the impulse
// rule: a basket more than BudgetSlack over budget is cut to one unit.
func (s *shopper) buy(t trip, rng *rand.Rand, date time.Time) (Order, bool) {
	if len(t.products) == 0 {
		return Order{}, false
	}
	chosen := closestPrice(t.products, t.targetPrice)
	if chosen.Stock() == 0 {
		if rng.Float64() >= t.substituteProb {
			logrus.Tracef("customer %d abandoned %q: product %d out of stock", s.id, t.category, chosen.ID())
			return Order{}, false
		}
		var inStock []*Product
		for _, p := range t.products {
			if p.Stock() > 0 {
				inStock = append(inStock, p)
			}
		}
		if len(inStock) == 0 {
			return Order{}, false
		}
		chosen = inStock[rng.Intn(len(inStock))]
		logrus.Tracef("customer %d substituted product %d in %q", s.id, chosen.ID(), t.category)
	}

	qty := min(max(t.quantity, 1), chosen.Stock())
	if s.budget-chosen.UnitPrice()*float64(qty) < -BudgetSlack {
		qty = 1
	}
	s.history[t.category] = append(s.history[t.category], Purchase{
		ProductID: chosen.ID(),
		UnitPrice: chosen.UnitPrice(),
		Quantity:  qty,
		Date:      FormatDate(date),
	})
	return Order{
		CustomerID: s.id,
		ProductID:  chosen.ID(),
		Category:   t.category,
		UnitPrice:  chosen.UnitPrice(),
		Quantity:   qty,
	}, true
}

// closestPrice returns the first product with the smallest absolute price
// difference to target.
func closestPrice(products []*Product, target float64) *Product {
	best := products[0]
	bestDiff := math.Abs(best.UnitPrice() - target)
	for _, p := range products[1:] {
		if d := math.Abs(p.UnitPrice() - target); d < bestDiff {
			best, bestDiff = p, d
		}
	}
	return best
}

// sampleQuantity draws a whole quantity of at least one.
func sampleQuantity(f dist.Field, rng *rand.Rand) int {
	q := int(f.Sample(rng))
	if q < 1 {
		return 1
	}
	return q
}
