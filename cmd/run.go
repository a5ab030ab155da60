package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/retail-sim/retail-sim/sim"
	"github.com/retail-sim/retail-sim/sim/checkpoint"
	"github.com/retail-sim/retail-sim/sim/export"
	"github.com/retail-sim/retail-sim/sim/registry"
	"github.com/retail-sim/retail-sim/sim/runs"
	"github.com/retail-sim/retail-sim/sim/telemetry"
)

var (
	startDate           string  // First simulated day; empty resumes from the checkpoint
	maxSteps            int     // Days to simulate
	customers1          int     // Target Cust1 population
	customers2          int     // Target Cust2 population
	productsPerCategory int     // Target products per leaf category
	visitProb           float64 // Mean daily Cust1 visit probability
	compression         string  // Checkpoint codec
	registryBackend     string  // Identifier registry backend
	metricsFile         string  // Prometheus textfile written at the end
	skipExport          bool    // Do not write result tables
)

// runCmd executes one simulation run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resume the population, step the horizon, export results and checkpoint",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := runSimulation(cmd.Context(), cfg, os.Stdout); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

func applyRunFlags(cmd *cobra.Command, cfg *sim.Config) {
	flags := cmd.Flags()
	if flags.Changed("start-date") {
		cfg.StartDate = startDate
	}
	if flags.Changed("steps") {
		cfg.MaxSteps = maxSteps
	}
	if flags.Changed("customers1") {
		cfg.NCustomers1 = customers1
	}
	if flags.Changed("customers2") {
		cfg.NCustomers2 = customers2
	}
	if flags.Changed("products-per-category") {
		cfg.NProductsPerCategory = productsPerCategory
	}
	if flags.Changed("visit-prob") {
		cfg.VisitProb = visitProb
	}
	if flags.Changed("compression") {
		cfg.Compression = compression
	}
	if flags.Changed("registry") {
		cfg.RegistryBackend = registryBackend
	}
}

func openRegistry(ctx context.Context, cfg sim.Config) (*registry.Registry, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	var backend registry.Backend
	switch cfg.RegistryBackend {
	case sim.RegistrySQLite:
		b, err := registry.OpenSQLite(ctx, cfg.RegistryPath())
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		backend = registry.NewFileBackend(cfg.RegistryPath())
	}
	reg, err := registry.Open(ctx, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return reg, nil
}

func openCheckpoints(cfg sim.Config) (*checkpoint.Store, error) {
	codec, err := checkpoint.CodecByName(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return checkpoint.New(cfg.CheckpointRoot(), checkpoint.WithCodec(codec), checkpoint.WithRetention(cfg.Retention))
}

// runSimulation is one complete run. Identifiers are committed only after
// the checkpoint holding the agents that use them has been written.
func runSimulation(ctx context.Context, cfg sim.Config, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	store, err := openCheckpoints(cfg)
	if err != nil {
		return err
	}

	sources, err := sim.LoadSources(ctx, cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.ResolveSeed())))
	if err != nil {
		return err
	}
	prom := telemetry.NewPrometheus(nil)
	collector := telemetry.Multi{prom, telemetry.NewLogger(logrus.WithField("component", "telemetry"))}
	model, err := sim.NewModel(cfg, reg, sources, collector)
	if err != nil {
		return err
	}
	if _, err := model.LoadCheckpoint(ctx, store); err != nil {
		if !errors.Is(err, checkpoint.ErrNothingToLoad) {
			return err
		}
		logrus.Info("no checkpoint found, starting a fresh population")
	}
	if _, err := model.InitializeExtraAgents(); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	manager := runs.NewManager()
	id := manager.Start(runCtx, model.Run)
	done, err := manager.Done(id)
	if err != nil {
		return err
	}
	<-done
	progress, err := manager.Progress(id, 0)
	if err != nil {
		return err
	}
	switch progress.Status {
	case runs.StatusError:
		return fmt.Errorf("run %s: %s", id, progress.Error)
	case runs.StatusStopped:
		logrus.Warnf("run %s interrupted after %d days; saving progress", id, len(progress.Days))
	}

	persist := context.WithoutCancel(ctx)
	if !skipExport {
		w, err := export.NewWriter(cfg.ExportRoot())
		if err != nil {
			return err
		}
		res, err := model.Export(w)
		if err != nil {
			return fmt.Errorf("exporting results: %w", err)
		}
		for table, n := range res {
			logrus.Infof("exported %d %s rows", n, table)
		}
	}
	if _, err := model.SaveCheckpoint(persist, store); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	if err := reg.Commit(persist); err != nil {
		return err
	}

	sim.Summarize(progress.Days).Print(stdout)
	if metricsFile != "" {
		if err := prom.WriteTextfile(metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		logrus.Infof("metrics written to %s", metricsFile)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&startDate, "start-date", "", "First simulated day (YYYYMMDD or YYYY-MM-DD); empty resumes from the checkpoint")
	runCmd.Flags().IntVar(&maxSteps, "steps", 1, "Number of days to simulate")
	runCmd.Flags().IntVar(&customers1, "customers1", 250, "Target Cust1 population")
	runCmd.Flags().IntVar(&customers2, "customers2", 250, "Target Cust2 population")
	runCmd.Flags().IntVar(&productsPerCategory, "products-per-category", 10, "Target products per leaf category")
	runCmd.Flags().Float64Var(&visitProb, "visit-prob", 0.10, "Mean daily Cust1 visit probability")
	runCmd.Flags().StringVar(&compression, "compression", "zstd", "Checkpoint compression (zstd, gzip)")
	runCmd.Flags().StringVar(&registryBackend, "registry", sim.RegistryFile, "Identifier registry backend (file, sqlite)")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write a Prometheus textfile with the run's metrics")
	runCmd.Flags().BoolVar(&skipExport, "no-export", false, "Skip writing result tables")
}
