package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/retail-sim/retail-sim/sim"
	"github.com/retail-sim/retail-sim/sim/analyzer"
	"github.com/retail-sim/retail-sim/sim/pricing"
	"github.com/retail-sim/retail-sim/sim/taxonomy"
)

var (
	syntheticRows int    // Synthetic rows generated per customer dataset
	syntheticDir  string // Where synthetic datasets are written
)

// fitCmd builds the offline artefacts a run draws from
var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Analyse the customer datasets and build the price/quantity store",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := fit(cmd.Context(), cfg); err != nil {
			logrus.Fatalf("Fit failed: %v", err)
		}
	},
}

func fit(ctx context.Context, cfg sim.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.ResolveSeed()))
	cust1, cust2, err := sim.AnalyzeCustomers(ctx, cfg, rng)
	if err != nil {
		return err
	}
	logrus.Infof("cust1: %d segments, cust2: %d segments", len(cust1.Segments), len(cust2.Segments))

	store, err := buildPriceStore(cfg, rng)
	if err != nil {
		return err
	}
	if err := pricing.Save(cfg.Path(cfg.Sources.PriceStore), store); err != nil {
		return fmt.Errorf("saving price store: %w", err)
	}
	if err := writePriceTable(cfg.Path(cfg.Sources.PriceTable), store.Table()); err != nil {
		return fmt.Errorf("writing price table: %w", err)
	}
	logrus.Infof("price store with %d categories written to %s", store.Len(), cfg.Path(cfg.Sources.PriceStore))

	if err := sim.MapPreferences(&sim.Sources{Cust1: cust1, Cust2: cust2, Prices: store}); err != nil {
		return err
	}
	if syntheticRows > 0 {
		synth := rng.ForSubsystem(sim.SubsystemAnalysis + "_synthetic")
		for _, ds := range []struct {
			name   string
			bundle *analyzer.Bundle
		}{{"cust1", cust1}, {"cust2", cust2}} {
			path := filepath.Join(syntheticDir, "synthetic_"+ds.name+".csv")
			if err := writeSynthetic(path, ds.bundle, synth, syntheticRows); err != nil {
				return err
			}
			logrus.Infof("%d synthetic %s rows written to %s", syntheticRows, ds.name, path)
		}
	}
	return nil
}

// buildPriceStore resolves every price source onto the taxonomy and fits
// one record per leaf category. Without configured sources the Cust2
// transactions are used.
func buildPriceStore(cfg sim.Config, rng *sim.PartitionedRNG) (*pricing.Store, error) {
	tax, err := taxonomy.Load(cfg.Path(cfg.Sources.Taxonomy), cfg.Path(cfg.Sources.CategoryMapping))
	if err != nil {
		return nil, err
	}
	paths := cfg.Sources.PriceSources
	if len(paths) == 0 {
		paths = []string{cfg.Sources.Cust2Data}
	}
	draw := rng.ForSubsystem(sim.SubsystemAnalysis + "_prices")
	var obs []pricing.Observation
	for _, p := range paths {
		f, err := analyzer.ReadCSVFile(cfg.Path(p), analyzer.ReadOptions{MaxRows: cfg.Sources.MaxRows, RNG: draw})
		if err != nil {
			return nil, err
		}
		o, err := pricing.Observations(f, tax, pricing.SourceOptions{SynthesizeQuantity: true, RNG: draw})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		logrus.Debugf("%s: %d observations from %d rows", p, len(o), f.Len())
		obs = append(obs, o...)
	}
	return pricing.Build(obs)
}

var priceTableHeader = []string{
	"category", "count", "avg_price", "std_price", "avg_quantity", "std_quantity", "price_kind", "quantity_kind",
}

func writePriceTable(path string, rows []pricing.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(priceTableHeader); err != nil {
		return err
	}
	ftoa := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, r := range rows {
		if err := w.Write([]string{
			r.Category, strconv.Itoa(r.Count), ftoa(r.AvgPrice), ftoa(r.StdPrice),
			ftoa(r.AvgQuantity), ftoa(r.StdQuantity), string(r.PriceKind), string(r.QuantityKind),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeSynthetic(path string, b *analyzer.Bundle, rng *rand.Rand, n int) error {
	frame, err := b.Synthesize(rng, n)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := frame.WriteCSV(f); err != nil {
		return err
	}
	return f.Close()
}

func init() {
	fitCmd.Flags().IntVar(&syntheticRows, "synthetic", 0, "Also write this many synthetic rows per customer dataset")
	fitCmd.Flags().StringVar(&syntheticDir, "synthetic-dir", ".", "Directory for synthetic datasets")
}
