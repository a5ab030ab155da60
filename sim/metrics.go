package sim

import (
	"fmt"
	"io"

	"github.com/retail-sim/retail-sim/sim/agent"
)

// DayMetrics is the telemetry record of one simulated day.
type DayMetrics struct {
	Step         int                    `json:"step"`
	Date         string                 `json:"date"`
	Sales        float64                `json:"sales"` // fulfilled units times unit price
	UnitsSold    int                    `json:"units_sold"`
	Transactions int                    `json:"transactions"`
	NoPurchase   int                    `json:"no_purchase"` // customers that bought nothing
	AvgPurchase  map[agent.Kind]float64 `json:"avg_purchase"`
	Population   map[agent.Kind]int     `json:"population"`
	StockoutRate float64                `json:"stockout_rate"`
}

// RunSummary aggregates the days of one run for final reporting.
type RunSummary struct {
	Days         int
	Sales        float64
	UnitsSold    int
	Transactions int
	PeakStockout float64
	Population   map[agent.Kind]int // as of the last day
}

// Summarize folds days into a RunSummary.
func Summarize(days []DayMetrics) RunSummary {
	s := RunSummary{Days: len(days)}
	for _, d := range days {
		s.Sales += d.Sales
		s.UnitsSold += d.UnitsSold
		s.Transactions += d.Transactions
		s.PeakStockout = max(s.PeakStockout, d.StockoutRate)
		s.Population = d.Population
	}
	return s
}

// Print displays the summary.
func (s RunSummary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Days Simulated       : %d\n", s.Days)
	fmt.Fprintf(w, "Transactions         : %d\n", s.Transactions)
	fmt.Fprintf(w, "Units Sold           : %d\n", s.UnitsSold)
	fmt.Fprintf(w, "Sales                : %.2f\n", s.Sales)
	if s.Days > 0 {
		fmt.Fprintf(w, "Average Daily Sales  : %.2f\n", s.Sales/float64(s.Days))
		fmt.Fprintf(w, "Peak Stockout Rate   : %.4f\n", s.PeakStockout)
	}
	for _, k := range agent.Kinds {
		fmt.Fprintf(w, "Population %-9s : %d\n", k, s.Population[k])
	}
}
