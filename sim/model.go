package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/retail-sim/retail-sim/sim/agent"
	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/checkpoint"
	"github.com/retail-sim/retail-sim/sim/export"
	"github.com/retail-sim/retail-sim/sim/registry"
	"github.com/retail-sim/retail-sim/sim/taxonomy"
	"github.com/retail-sim/retail-sim/sim/telemetry"
)

var (
	// ErrNoStartDate means neither the config nor a checkpoint set the date.
	ErrNoStartDate = errors.New("no start date configured and no checkpoint to resume from")
	// ErrHorizonReached is returned by Step once MaxSteps days have run.
	ErrHorizonReached = errors.New("simulation horizon reached")
	// ErrDuplicateAgent is returned when an id is registered twice.
	ErrDuplicateAgent = errors.New("duplicate agent id")
)

// LoadStats describes the agents of one kind read from a checkpoint.
type LoadStats struct {
	Count int
	MaxID int64
}

// Model owns the agent population and the simulated calendar.
//
// Each Step resolves every customer's decision for the current date before
// any product inventory is debited, then advances the date by one day.
// After a run the date is the first unprocessed day, which is what gets
// checkpointed as the finish date.
type Model struct {
	cfg       Config
	rng       *PartitionedRNG
	registry  *registry.Registry
	sources   *Sources
	collector telemetry.Collector
	runID     string

	start time.Time
	date  time.Time
	steps int

	agents    map[int64]agent.Agent
	customers []agent.Customer // ascending id
	products  []*agent.Product // ascending id
	catalog   *Catalog
	metrics   []DayMetrics
}

// NewModel validates cfg and returns an empty model. sources may be nil
// when the population is restored entirely from a checkpoint. A nil
// collector discards telemetry.
func NewModel(cfg Config, reg *registry.Registry, sources *Sources, collector telemetry.Collector) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if collector == nil {
		collector = telemetry.Noop{}
	}
	seed := cfg.ResolveSeed()
	m := &Model{
		cfg:       cfg,
		rng:       NewPartitionedRNG(NewSimulationKey(seed)),
		registry:  reg,
		sources:   sources,
		collector: collector,
		runID:     uuid.NewString(),
		agents:    make(map[int64]agent.Agent),
		catalog:   NewCatalog(),
	}
	if cfg.StartDate != "" {
		d, err := ParseStartDate(cfg.StartDate)
		if err != nil {
			return nil, err
		}
		m.start, m.date = d, d
	}
	logrus.WithFields(logrus.Fields{"run_id": m.runID, "seed": seed}).Info("model created")
	return m, nil
}

// Seed is the master seed every draw of this run derives from.
func (m *Model) Seed() int64 { return *m.cfg.Seed }

// RunID identifies this run in checkpoint metadata.
func (m *Model) RunID() string { return m.runID }

// Date is the next day Step will simulate.
func (m *Model) Date() time.Time { return m.date }

// StartDate is the first day of this run.
func (m *Model) StartDate() time.Time { return m.start }

// Steps is the number of days simulated in this run.
func (m *Model) Steps() int { return m.steps }

// Done reports whether the configured horizon has been reached.
func (m *Model) Done() bool { return m.steps >= m.cfg.MaxSteps }

// Catalog returns the product index customers shop against.
func (m *Model) Catalog() *Catalog { return m.catalog }

// Metrics returns the per-day records collected so far.
func (m *Model) Metrics() []DayMetrics { return append([]DayMetrics(nil), m.metrics...) }

// Add registers a into the population.
func (m *Model) Add(a agent.Agent) error {
	if _, dup := m.agents[a.ID()]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateAgent, a.ID())
	}
	m.agents[a.ID()] = a
	switch v := a.(type) {
	case *agent.Product:
		i := sort.Search(len(m.products), func(i int) bool { return m.products[i].ID() > v.ID() })
		m.products = append(m.products, nil)
		copy(m.products[i+1:], m.products[i:])
		m.products[i] = v
		m.catalog.Add(v)
	case agent.Customer:
		i := sort.Search(len(m.customers), func(i int) bool { return m.customers[i].ID() > v.ID() })
		m.customers = append(m.customers, nil)
		copy(m.customers[i+1:], m.customers[i:])
		m.customers[i] = v
	default:
		delete(m.agents, a.ID())
		return fmt.Errorf("unsupported agent %T", a)
	}
	return nil
}

// Agent looks up an agent by id.
func (m *Model) Agent(id int64) (agent.Agent, bool) {
	a, ok := m.agents[id]
	return a, ok
}

// Agents returns customers then products, each in ascending id order.
func (m *Model) Agents() []agent.Agent {
	out := make([]agent.Agent, 0, len(m.agents))
	for _, c := range m.customers {
		out = append(out, c)
	}
	for _, p := range m.products {
		out = append(out, p)
	}
	return out
}

// Count returns the number of live agents of kind.
func (m *Model) Count(kind agent.Kind) int {
	n := 0
	for _, a := range m.agents {
		if a.Kind() == kind {
			n++
		}
	}
	return n
}

func (m *Model) ids() map[agent.Kind][]int64 {
	out := make(map[agent.Kind][]int64, len(agent.Kinds))
	for id, a := range m.agents {
		out[a.Kind()] = append(out[a.Kind()], id)
	}
	return out
}

// LoadCheckpoint restores every agent of the newest checkpoint in store.
// It returns checkpoint.ErrNothingToLoad when the store is empty. Without a
// configured start date the run resumes at the checkpoint's finish date.
func (m *Model) LoadCheckpoint(ctx context.Context, store *checkpoint.Store) (map[agent.Kind]LoadStats, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[agent.Kind]LoadStats, len(agent.Kinds))
	for i, line := range snap.Records {
		a, err := agent.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("%s record %d: %w", snap.Dir, i+1, err)
		}
		if err := m.Add(a); err != nil {
			return nil, err
		}
		s := stats[a.Kind()]
		s.Count++
		s.MaxID = max(s.MaxID, a.ID())
		stats[a.Kind()] = s
	}
	if m.cfg.StartDate == "" {
		d, err := agent.ParseDate(snap.Metadata.FinishDate)
		if err != nil {
			return nil, fmt.Errorf("%w: finish date %q", checkpoint.ErrCorrupt, snap.Metadata.FinishDate)
		}
		m.start, m.date = d, d
	}
	for _, k := range agent.Kinds {
		logrus.Infof("loaded %d %s agents (max id %d)", stats[k].Count, k, stats[k].MaxID)
	}
	return stats, nil
}

// InitializeExtraAgents checks the loaded population against the id
// registry, then creates agents until every kind reaches its configured
// count. Products are added in equal shares per category of the price
// store; a shortfall not divisible by the category count is rounded down.
// It returns how many agents of each kind were created.
func (m *Model) InitializeExtraAgents() (map[agent.Kind]int, error) {
	if err := m.registry.Verify(m.ids()); err != nil {
		return nil, err
	}
	rng := m.rng.ForSubsystem(SubsystemPopulation)
	added := make(map[agent.Kind]int, len(agent.Kinds))

	newCustomer := map[agent.Kind]func(id int64) (agent.Agent, error){
		agent.KindCust1: func(id int64) (agent.Agent, error) {
			return agent.NewCust1(id, m.sources.Cust1, m.cfg.VisitProb, rng)
		},
		agent.KindCust2: func(id int64) (agent.Agent, error) {
			return agent.NewCust2(id, m.sources.Cust2, rng)
		},
	}
	targets := map[agent.Kind]int{agent.KindCust1: m.cfg.NCustomers1, agent.KindCust2: m.cfg.NCustomers2}
	for _, kind := range []agent.Kind{agent.KindCust1, agent.KindCust2} {
		shortfall := targets[kind] - m.Count(kind)
		if shortfall <= 0 {
			continue
		}
		if m.bundle(kind) == nil {
			return added, fmt.Errorf("%d %s agents short and no segment bundle to draw them from", shortfall, kind)
		}
		for i := 0; i < shortfall; i++ {
			id, err := m.registry.Next(kind)
			if err != nil {
				return added, err
			}
			a, err := newCustomer[kind](id)
			if err != nil {
				return added, fmt.Errorf("creating %s %d: %w", kind, id, err)
			}
			if err := m.Add(a); err != nil {
				return added, err
			}
			added[kind]++
		}
	}

	if err := m.topUpProducts(rng, added); err != nil {
		return added, err
	}
	logrus.WithFields(logrus.Fields{
		"cust1":   added[agent.KindCust1],
		"cust2":   added[agent.KindCust2],
		"product": added[agent.KindProduct],
	}).Info("population topped up")
	return added, nil
}

func (m *Model) bundle(kind agent.Kind) *analyzer.Bundle {
	switch {
	case m.sources == nil:
		return nil
	case kind == agent.KindCust1:
		return m.sources.Cust1
	case kind == agent.KindCust2:
		return m.sources.Cust2
	}
	return nil
}

func (m *Model) topUpProducts(rng *rand.Rand, added map[agent.Kind]int) error {
	have := m.Count(agent.KindProduct)
	if m.sources == nil || m.sources.Prices == nil {
		if have == 0 {
			return errors.New("no products loaded and no price store to draw them from")
		}
		return nil
	}
	categories := m.sources.Prices.Categories()
	if len(categories) == 0 {
		return errors.New("price store has no categories")
	}
	shortfall := m.cfg.NProductsPerCategory*len(categories) - have
	if shortfall <= 0 {
		return nil
	}
	perCategory := shortfall / len(categories)
	if dropped := shortfall - perCategory*len(categories); dropped > 0 {
		logrus.Debugf("product top-up drops %d of %d to keep equal shares", dropped, shortfall)
	}
	for _, path := range categories {
		rec, _ := m.sources.Prices.Get(path)
		for i := 0; i < perCategory; i++ {
			id, err := m.registry.Next(agent.KindProduct)
			if err != nil {
				return err
			}
			price := rec.Price.Sample(rng)
			qty := rec.Quantity.Sample(rng)
			if err := m.Add(agent.NewProduct(id, taxonomy.LeafKey(path), price, qty, rng)); err != nil {
				return err
			}
			added[agent.KindProduct]++
		}
	}
	return nil
}

// Step simulates the current date and advances it by one day.
func (m *Model) Step() (DayMetrics, error) {
	if m.date.IsZero() {
		return DayMetrics{}, ErrNoStartDate
	}
	if m.Done() {
		return DayMetrics{}, ErrHorizonReached
	}
	begin := time.Now()
	rng := m.rng.ForSubsystem(SubsystemCustomers)
	day := DayMetrics{
		Step:        m.steps + 1,
		Date:        agent.FormatDate(m.date),
		AvgPurchase: make(map[agent.Kind]float64, 2),
		Population:  make(map[agent.Kind]int, len(agent.Kinds)),
	}

	demand := make(map[int64]int)
	spend := make(map[agent.Kind]float64, 2)
	orders := make(map[agent.Kind]int, 2)
	for _, c := range m.customers {
		day.Population[c.Kind()]++
		o, ok := c.Step(m.date, rng, m.catalog)
		if !ok {
			day.NoPurchase++
			continue
		}
		demand[o.ProductID] += o.Quantity
		spend[c.Kind()] += o.Total()
		orders[c.Kind()]++
		day.Transactions++
		m.collector.ObserveHistogram(telemetry.MetricPurchaseSize, o.Total())
	}
	for kind, n := range orders {
		day.AvgPurchase[kind] = spend[kind] / float64(n)
	}

	stockouts := 0
	for _, p := range m.products {
		sold := p.RecordSales(m.date, demand[p.ID()])
		day.UnitsSold += sold
		day.Sales += float64(sold) * p.UnitPrice()
		p.Step(m.date)
		if p.Stock() == 0 {
			stockouts++
		}
	}
	day.Population[agent.KindProduct] = len(m.products)
	if len(m.products) > 0 {
		day.StockoutRate = float64(stockouts) / float64(len(m.products))
	}

	m.registry.AddTransactions(int64(day.Transactions))
	m.record(day, time.Since(begin))
	m.metrics = append(m.metrics, day)
	m.steps++
	m.date = m.date.AddDate(0, 0, 1)
	return day, nil
}

func (m *Model) record(day DayMetrics, elapsed time.Duration) {
	c := m.collector
	c.IncCounter(telemetry.MetricDays, 1)
	c.IncCounter(telemetry.MetricTransactions, int64(day.Transactions))
	c.IncCounter(telemetry.MetricUnitsSold, int64(day.UnitsSold))
	c.IncCounter(telemetry.MetricNoPurchase, int64(day.NoPurchase))
	c.SetGauge(telemetry.MetricDaySales, day.Sales)
	c.SetGauge(telemetry.MetricStockoutRate, day.StockoutRate)
	c.SetGauge(telemetry.MetricCust1Population, float64(day.Population[agent.KindCust1]))
	c.SetGauge(telemetry.MetricCust2Population, float64(day.Population[agent.KindCust2]))
	c.SetGauge(telemetry.MetricProducts, float64(day.Population[agent.KindProduct]))
	c.ObserveHistogram(telemetry.MetricStepSeconds, elapsed.Seconds())

	logrus.WithFields(logrus.Fields{
		"step":         day.Step,
		"date":         day.Date,
		"sales":        fmt.Sprintf("%.2f", day.Sales),
		"transactions": day.Transactions,
		"stockout":     fmt.Sprintf("%.3f", day.StockoutRate),
	}).Info("day simulated")
}

// Run steps until the horizon is reached, calling onDay after every day.
// Cancellation is honoured between days only.
func (m *Model) Run(ctx context.Context, onDay func(DayMetrics)) error {
	for !m.Done() {
		if err := ctx.Err(); err != nil {
			logrus.Warnf("run %s stopped after %d of %d days", m.runID, m.steps, m.cfg.MaxSteps)
			return err
		}
		day, err := m.Step()
		if err != nil {
			return err
		}
		if onDay != nil {
			onDay(day)
		}
	}
	return nil
}

// SaveCheckpoint writes every live agent and this run's metadata to store.
func (m *Model) SaveCheckpoint(ctx context.Context, store *checkpoint.Store) (string, error) {
	if m.date.IsZero() {
		return "", ErrNoStartDate
	}
	agents := m.Agents()
	records := make([][]byte, 0, len(agents))
	counts := make(map[string]int, len(agent.Kinds))
	for _, a := range agents {
		line, err := agent.Encode(a)
		if err != nil {
			return "", err
		}
		records = append(records, line)
		counts[string(a.Kind())]++
	}
	return store.Save(ctx, records, checkpoint.Metadata{
		RunID:         m.runID,
		StartDate:     agent.FormatDate(m.start),
		FinishDate:    agent.FormatDate(m.date),
		DaysSimulated: m.steps,
		Seed:          m.Seed(),
		Counts:        counts,
	})
}

// Export appends this run's result tables to w. Demographic and product
// tables are partitioned by the last simulated day.
func (m *Model) Export(w *export.Writer) (export.Result, error) {
	day := m.date
	if m.steps > 0 {
		day = day.AddDate(0, 0, -1)
	}
	return w.Export(m.Agents(), day)
}
