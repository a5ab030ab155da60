package agent

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/retail-sim/retail-sim/sim/dist"
)

// Restock policy parameters. Lead time, ordering cost and holding cost are
// drawn once per product from normals with these moments.
const (
	LeadDaysMean     = 7.0
	LeadDaysStd      = 2.0
	OrderingCostMean = 20.0
	OrderingCostStd  = 5.0
	HoldingCostMean  = 0.10
	HoldingCostStd   = 0.02
	MinOrderingCost  = 0.01
	MinHoldingCost   = 0.001
	MinUnitPrice     = 1.0
	WeeksPerYear     = 52
	MaxInitialStock  = 500
	MinRestockQty    = 50
	MaxRestockQty    = 500
)

// EOQ is the economic order quantity sqrt(2DS/H) for annual demand D,
// per-order cost S and per-unit holding cost H.
func EOQ(annualDemand, orderingCost, holdingCost float64) float64 {
	if annualDemand <= 0 || orderingCost <= 0 || holdingCost <= 0 {
		return 0
	}
	return math.Sqrt(2 * annualDemand * orderingCost / holdingCost)
}

// RestockOrder is stock in transit.
type RestockOrder struct {
	Arrival  time.Time
	Quantity int
}

// Product is a stocked item with an EOQ reorder policy. Stock never goes
// negative; at most one restock order is outstanding at a time.
type Product struct {
	id           int64
	category     string
	unitPrice    float64
	annualDemand float64
	leadDays     int
	orderingCost float64
	holdingCost  float64
	eoq          float64

	stock       int
	pending     []RestockOrder
	dailySales  int
	totalSales  int
	salesByDate map[string]int
}

var _ Agent = (*Product)(nil)

// NewProduct creates a product, sampling its restock policy. avgQuantity is
// the category's typical weekly demand.
func NewProduct(id int64, category string, unitPrice, avgQuantity float64, rng *rand.Rand) *Product {
	p := &Product{
		id:           id,
		category:     category,
		unitPrice:    unitPrice,
		annualDemand: avgQuantity * WeeksPerYear,
		leadDays:     max(1, int(rng.NormFloat64()*LeadDaysStd+LeadDaysMean)),
		orderingCost: dist.Clamped(rng, OrderingCostMean, OrderingCostStd, MinOrderingCost),
		holdingCost:  dist.Clamped(rng, HoldingCostMean, HoldingCostStd, MinHoldingCost),
		salesByDate:  make(map[string]int),
	}
	if p.unitPrice <= 0 {
		p.unitPrice = MinUnitPrice
	}
	p.eoq = EOQ(p.annualDemand, p.orderingCost, p.holdingCost)
	p.stock = min(int(p.eoq), MaxInitialStock)
	return p
}

// ID implements Agent.
func (p *Product) ID() int64 { return p.id }

// Kind implements Agent.
func (p *Product) Kind() Kind { return KindProduct }

// Category returns the canonical leaf key.
func (p *Product) Category() string { return p.category }

// UnitPrice returns the fixed unit price.
func (p *Product) UnitPrice() float64 { return p.unitPrice }

// Stock returns units on hand.
func (p *Product) Stock() int { return p.stock }

// EOQ returns the economic order quantity.
func (p *Product) EOQ() float64 { return p.eoq }

// LeadDays returns the restock lead time.
func (p *Product) LeadDays() int { return p.leadDays }

// DailySales returns units sold since the last step.
func (p *Product) DailySales() int { return p.dailySales }

// TotalSales returns units sold over the product's lifetime.
func (p *Product) TotalSales() int { return p.totalSales }

// SalesOn returns units sold on date.
func (p *Product) SalesOn(date time.Time) int { return p.salesByDate[FormatDate(date)] }

// Pending returns a copy of the orders in transit.
func (p *Product) Pending() []RestockOrder { return append([]RestockOrder(nil), p.pending...) }

// RecordSales debits up to qty units and returns how many were fulfilled.
func (p *Product) RecordSales(date time.Time, qty int) int {
	if qty <= 0 {
		return 0
	}
	sold := min(qty, p.stock)
	if sold < qty {
		logrus.Debugf("product %d partially fulfilled %d of %d units", p.id, sold, qty)
	}
	p.stock -= sold
	p.dailySales += sold
	p.totalSales += sold
	p.salesByDate[FormatDate(date)] += sold
	return sold
}

// Step runs the daily inventory cycle: place a restock order if stock is
// below half the EOQ, receive orders due by date, reset the daily counter.
func (p *Product) Step(date time.Time) {
	p.placeRestock(date)
	p.receive(date)
	p.dailySales = 0
}

func (p *Product) orderQuantity() int {
	return min(max(int(p.eoq), MinRestockQty), MaxRestockQty)
}

func (p *Product) placeRestock(date time.Time) {
	if len(p.pending) > 0 || float64(p.stock) >= p.eoq/2 {
		return
	}
	order := RestockOrder{Arrival: date.AddDate(0, 0, p.leadDays), Quantity: p.orderQuantity()}
	p.pending = append(p.pending, order)
	logrus.Debugf("product %d ordered %d units arriving %s", p.id, order.Quantity, FormatDate(order.Arrival))
}

func (p *Product) receive(date time.Time) {
	kept := p.pending[:0]
	for _, o := range p.pending {
		if o.Arrival.After(date) {
			kept = append(kept, o)
			continue
		}
		p.stock += o.Quantity
	}
	p.pending = kept
}

// PendingRecord is the persisted form of a RestockOrder.
type PendingRecord struct {
	Arrival  string `json:"arrival"`
	Quantity int    `json:"quantity"`
}

// ProductRecord is the flattened persisted form of a Product.
type ProductRecord struct {
	Type         Kind            `json:"type"`
	ID           int64           `json:"unique_id"`
	Category     string          `json:"product_category"`
	UnitPrice    float64         `json:"unit_price"`
	AnnualDemand float64         `json:"annual_demand"`
	LeadDays     int             `json:"lead_days"`
	OrderingCost float64         `json:"ordering_cost"`
	HoldingCost  float64         `json:"holding_cost_per_unit"`
	EOQ          float64         `json:"eoq"`
	Stock        int             `json:"stock"`
	Pending      []PendingRecord `json:"pending_restock_orders"`
	DailySales   int             `json:"daily_sales"`
	TotalSales   int             `json:"total_sales"`
	SalesByDate  map[string]int  `json:"sales_by_date"`
}

// Record flattens p.
func (p *Product) Record() ProductRecord {
	pending := make([]PendingRecord, len(p.pending))
	for i, o := range p.pending {
		pending[i] = PendingRecord{Arrival: FormatDate(o.Arrival), Quantity: o.Quantity}
	}
	sales := make(map[string]int, len(p.salesByDate))
	for d, n := range p.salesByDate {
		sales[d] = n
	}
	return ProductRecord{
		Type:         KindProduct,
		ID:           p.id,
		Category:     p.category,
		UnitPrice:    p.unitPrice,
		AnnualDemand: p.annualDemand,
		LeadDays:     p.leadDays,
		OrderingCost: p.orderingCost,
		HoldingCost:  p.holdingCost,
		EOQ:          p.eoq,
		Stock:        p.stock,
		Pending:      pending,
		DailySales:   p.dailySales,
		TotalSales:   p.totalSales,
		SalesByDate:  sales,
	}
}

// RestoreProduct rebuilds a Product from its record. The EOQ is recomputed
// from the stored policy parameters.
func RestoreProduct(r ProductRecord) (*Product, error) {
	if r.Stock < 0 {
		return nil, fmt.Errorf("product %d has negative stock %d", r.ID, r.Stock)
	}
	p := &Product{
		id:           r.ID,
		category:     r.Category,
		unitPrice:    r.UnitPrice,
		annualDemand: r.AnnualDemand,
		leadDays:     max(1, r.LeadDays),
		orderingCost: r.OrderingCost,
		holdingCost:  r.HoldingCost,
		stock:        r.Stock,
		dailySales:   r.DailySales,
		totalSales:   r.TotalSales,
		salesByDate:  make(map[string]int, len(r.SalesByDate)),
	}
	if p.unitPrice <= 0 {
		p.unitPrice = MinUnitPrice
	}
	p.eoq = EOQ(p.annualDemand, p.orderingCost, p.holdingCost)
	for d, n := range r.SalesByDate {
		p.salesByDate[d] = n
	}
	for _, o := range r.Pending {
		arrival, err := ParseDate(o.Arrival)
		if err != nil {
			return nil, fmt.Errorf("product %d pending order: %w", r.ID, err)
		}
		p.pending = append(p.pending, RestockOrder{Arrival: arrival, Quantity: o.Quantity})
	}
	sort.Slice(p.pending, func(i, j int) bool { return p.pending[i].Arrival.Before(p.pending[j].Arrival) })
	return p, nil
}
