package telemetry

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Collector with lazily registered metrics.
type Prometheus struct {
	registry *prometheus.Registry

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus returns a collector over registry, or a fresh registry
// when registry is nil.
func NewPrometheus(registry *prometheus.Registry) *Prometheus {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &Prometheus{
		registry:   registry,
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// IncCounter implements Collector.
func (p *Prometheus) IncCounter(name string, delta int64) {
	getOrCreate(p, p.counters, name, func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: name})
	}).Add(float64(delta))
}

// SetGauge implements Collector.
func (p *Prometheus) SetGauge(name string, value float64) {
	getOrCreate(p, p.gauges, name, func() prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: name})
	}).Set(value)
}

// ObserveHistogram implements Collector.
func (p *Prometheus) ObserveHistogram(name string, value float64) {
	getOrCreate(p, p.histograms, name, func() prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		})
	}).Observe(value)
}

func getOrCreate[M prometheus.Collector](p *Prometheus, metrics map[string]M, name string, create func() M) M {
	p.mu.RLock()
	m, ok := metrics[name]
	p.mu.RUnlock()
	if ok {
		return m
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok = metrics[name]; ok {
		return m
	}
	m = create()
	if err := p.registry.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(M); ok {
				m = existing
			}
		}
	}
	metrics[name] = m
	return m
}

// WriteTextfile writes every registered metric in the text exposition
// format, for pickup by a node exporter textfile collector.
func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}
