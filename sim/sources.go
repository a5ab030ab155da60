package sim

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/retail-sim/retail-sim/sim/agent"
	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/pricing"
	"github.com/retail-sim/retail-sim/sim/taxonomy"
)

// Sources are the learned distributions new agents are drawn from.
type Sources struct {
	Cust1  *analyzer.Bundle
	Cust2  *analyzer.Bundle
	Prices *pricing.Store
}

// AnalysisOptions derives the analyzer settings from the sources config.
func (c *Config) AnalysisOptions(seed int64) analyzer.Options {
	opts := analyzer.DefaultOptions()
	if c.Sources.Clusters > 0 {
		opts.Clusters = c.Sources.Clusters
	}
	if c.Sources.Cutoff > 0 {
		opts.Cutoff = c.Sources.Cutoff
	}
	opts.Seed = seed
	return opts
}

// AnalyzeCustomers fits the segment bundles of both customer datasets
// concurrently. Each dataset gets its own RNG.
func AnalyzeCustomers(ctx context.Context, cfg Config, rng *PartitionedRNG) (cust1, cust2 *analyzer.Bundle, err error) {
	jobs := []struct {
		path string
		rng  *rand.Rand
		out  **analyzer.Bundle
	}{
		{cfg.Path(cfg.Sources.Cust1Data), rng.ForSubsystem(SubsystemAnalysis + "_cust1"), &cust1},
		{cfg.Path(cfg.Sources.Cust2Data), rng.ForSubsystem(SubsystemAnalysis + "_cust2"), &cust2},
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			read := analyzer.ReadOptions{MaxRows: cfg.Sources.MaxRows, RNG: job.rng}
			b, err := analyzer.Analyze(job.path, read, cfg.AnalysisOptions(job.rng.Int63()))
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", job.path, err)
			}
			*job.out = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cust1, cust2, nil
}

// MapPreferences re-keys both bundles' category preferences onto the leaf
// categories of prices, so that every customer can shop every category a
// product exists in.
func MapPreferences(src *Sources) error {
	tax, err := taxonomy.FromPaths(src.Prices.Categories())
	if err != nil {
		return fmt.Errorf("taxonomy from price store: %w", err)
	}
	m := taxonomy.NewMapper(tax)
	for _, b := range []struct {
		bundle *analyzer.Bundle
		column string
	}{
		{src.Cust1, agent.Cust1Preference},
		{src.Cust2, agent.Cust2Preference},
	} {
		if b.bundle == nil {
			continue
		}
		raw := b.bundle.Preferences(b.column)
		if len(raw) == 0 {
			return fmt.Errorf("%w: no segment has %q", agent.ErrSchema, b.column)
		}
		b.bundle.SetPreferences(b.column, m.MapSegments(raw))
	}
	logrus.Infof("mapped customer preferences onto %d leaf categories", len(m.Leaves()))
	return nil
}

// LoadSources analyses the customer datasets, loads the price store and
// maps preferences.
func LoadSources(ctx context.Context, cfg Config, rng *PartitionedRNG) (*Sources, error) {
	prices, err := pricing.Load(cfg.Path(cfg.Sources.PriceStore))
	if err != nil {
		return nil, fmt.Errorf("loading price store: %w", err)
	}
	cust1, cust2, err := AnalyzeCustomers(ctx, cfg, rng)
	if err != nil {
		return nil, err
	}
	src := &Sources{Cust1: cust1, Cust2: cust2, Prices: prices}
	if err := MapPreferences(src); err != nil {
		return nil, err
	}
	return src, nil
}
