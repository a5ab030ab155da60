package agent

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func restoreProduct(t *testing.T, r ProductRecord) *Product {
	t.Helper()
	r.Type = KindProduct
	p, err := RestoreProduct(r)
	require.NoError(t, err)
	return p
}

func TestEOQ(t *testing.T) {
	tests := []struct {
		name    string
		d, s, h float64
		want    float64
	}{
		{"textbook", 520, 20, 0.1, math.Sqrt(208000)},
		{"zero demand", 0, 20, 0.1, 0},
		{"zero holding", 520, 20, 0, 0},
		{"negative cost", 520, -1, 0.1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EOQ(tt.d, tt.s, tt.h), 1e-9)
		})
	}
}

func TestNewProduct_PolicyBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		p := NewProduct(int64(10000+i), "dairy", 0, 5000, rng)
		assert.GreaterOrEqual(t, p.LeadDays(), 1)
		assert.LessOrEqual(t, p.Stock(), MaxInitialStock)
		assert.Equal(t, min(int(p.EOQ()), MaxInitialStock), p.Stock())
		assert.Equal(t, MinUnitPrice, p.UnitPrice(), "non-positive price is floored")
		assert.Empty(t, p.Pending())
	}
}

func TestProduct_RecordSales_NeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := restoreProduct(t, ProductRecord{ID: 10000, Category: "dairy", UnitPrice: 4,
		AnnualDemand: 520, LeadDays: 3, OrderingCost: 20, HoldingCost: 0.1, Stock: 60})
	date := day0
	for i := 0; i < 300; i++ {
		if i%5 == 0 {
			p.Step(date)
			date = date.AddDate(0, 0, 1)
		}
		want := rng.Intn(30)
		got := p.RecordSales(date, want)
		assert.LessOrEqual(t, got, want)
		assert.GreaterOrEqual(t, p.Stock(), 0)
		assert.LessOrEqual(t, p.DailySales(), p.TotalSales())
		assert.LessOrEqual(t, len(p.Pending()), 1)
	}
}

func TestProduct_RecordSales_Partial(t *testing.T) {
	p := restoreProduct(t, ProductRecord{ID: 10000, Category: "dairy", UnitPrice: 4, Stock: 3})
	assert.Equal(t, 3, p.RecordSales(day0, 5))
	assert.Equal(t, 0, p.Stock())
	assert.Equal(t, 0, p.RecordSales(day0, 2))
	assert.Equal(t, 0, p.RecordSales(day0, -1))
	assert.Equal(t, 3, p.SalesOn(day0))
	assert.Equal(t, 3, p.TotalSales())
}

func TestProduct_RestockArrivesAfterLead(t *testing.T) {
	p := restoreProduct(t, ProductRecord{ID: 10000, Category: "dairy", UnitPrice: 4,
		AnnualDemand: 520, LeadDays: 3, OrderingCost: 20, HoldingCost: 0.1, Stock: 0})
	require.Equal(t, 456, int(p.EOQ()))

	p.Step(day0)
	pending := p.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 456, pending[0].Quantity)
	assert.Equal(t, day0.AddDate(0, 0, 3), pending[0].Arrival)

	for d := 1; d < 3; d++ {
		p.Step(day0.AddDate(0, 0, d))
		assert.Equal(t, 0, p.Stock(), "day %d", d)
		assert.Len(t, p.Pending(), 1, "no second order while one is pending")
	}
	p.Step(day0.AddDate(0, 0, 3))
	assert.Equal(t, 456, p.Stock())
	assert.Empty(t, p.Pending())
}

func TestProduct_RestockQuantityClamped(t *testing.T) {
	// EOQ of 40 sits below the minimum order size.
	p := restoreProduct(t, ProductRecord{ID: 10000, Category: "dairy", UnitPrice: 4,
		AnnualDemand: 8, LeadDays: 1, OrderingCost: 10, HoldingCost: 0.1, Stock: 0})
	require.InDelta(t, 40, p.EOQ(), 1e-9)
	p.Step(day0)
	p.Step(day0.AddDate(0, 0, 1))
	assert.Equal(t, MinRestockQty, p.Stock())
}

func TestProduct_NoRestockAboveHalfEOQ(t *testing.T) {
	p := restoreProduct(t, ProductRecord{ID: 10000, Category: "dairy", UnitPrice: 4,
		AnnualDemand: 520, LeadDays: 3, OrderingCost: 20, HoldingCost: 0.1, Stock: 300})
	p.Step(day0)
	assert.Empty(t, p.Pending())
}

func TestProduct_StepResetsDailySales(t *testing.T) {
	p := restoreProduct(t, ProductRecord{ID: 10000, Category: "dairy", UnitPrice: 4, Stock: 50})
	p.RecordSales(day0, 4)
	assert.Equal(t, 4, p.DailySales())
	p.Step(day0)
	assert.Equal(t, 0, p.DailySales())
	assert.Equal(t, 4, p.TotalSales())
}

func TestRestoreProduct_RejectsNegativeStock(t *testing.T) {
	_, err := RestoreProduct(ProductRecord{ID: 10000, Stock: -1})
	assert.Error(t, err)
}
