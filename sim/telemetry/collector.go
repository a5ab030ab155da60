// Package telemetry provides a unified interface for the per-day metrics of
// a simulation run.
package telemetry

// Metric names recorded by the model.
const (
	MetricDays            = "retailsim_days_total"
	MetricTransactions    = "retailsim_transactions_total"
	MetricUnitsSold       = "retailsim_units_sold_total"
	MetricNoPurchase      = "retailsim_no_purchase_total"
	MetricDaySales        = "retailsim_day_sales_dollars"
	MetricStockoutRate    = "retailsim_stockout_rate"
	MetricCust1Population = "retailsim_cust1_population"
	MetricCust2Population = "retailsim_cust2_population"
	MetricProducts        = "retailsim_product_population"
	MetricPurchaseSize    = "retailsim_purchase_size_dollars"
	MetricStepSeconds     = "retailsim_step_seconds"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncCounter increments a counter metric by delta.
	IncCounter(name string, delta int64)

	// SetGauge sets a gauge metric to value.
	SetGauge(name string, value float64)

	// ObserveHistogram records a value in a histogram metric.
	ObserveHistogram(name string, value float64)
}

// Noop discards all metrics.
type Noop struct{}

var _ Collector = Noop{}

func (Noop) IncCounter(string, int64)         {}
func (Noop) SetGauge(string, float64)         {}
func (Noop) ObserveHistogram(string, float64) {}

// Multi fans every call out to each collector.
type Multi []Collector

var _ Collector = Multi(nil)

// IncCounter implements Collector.
func (m Multi) IncCounter(name string, delta int64) {
	for _, c := range m {
		c.IncCounter(name, delta)
	}
}

// SetGauge implements Collector.
func (m Multi) SetGauge(name string, value float64) {
	for _, c := range m {
		c.SetGauge(name, value)
	}
}

// ObserveHistogram implements Collector.
func (m Multi) ObserveHistogram(name string, value float64) {
	for _, c := range m {
		c.ObserveHistogram(name, value)
	}
}
