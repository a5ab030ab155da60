package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/retail-sim/retail-sim/sim"
	"github.com/retail-sim/retail-sim/sim/checkpoint"
)

// inspectCmd prints the newest checkpoint and the identifier registry
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the newest checkpoint's metadata and the identifier registry",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := inspect(cmd.Context(), cfg, os.Stdout); err != nil {
			logrus.Fatalf("Inspect failed: %v", err)
		}
	},
}

func inspect(ctx context.Context, cfg sim.Config, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openCheckpoints(cfg)
	if err != nil {
		return err
	}
	dirs, err := store.List()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "=== Checkpoints (%s) ===\n", store.Root())
	for _, d := range dirs {
		fmt.Fprintf(w, "  %s\n", d)
	}
	meta, history, err := store.Metadata()
	switch {
	case errors.Is(err, checkpoint.ErrNothingToLoad):
		fmt.Fprintln(w, "  (none)")
	case err != nil:
		return err
	default:
		printMetadata(w, meta, len(history))
	}

	reg, err := openRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	totals := reg.Totals()
	names := make([]string, 0, len(totals))
	for k := range totals {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "=== Identifier Registry (%s) ===\n", cfg.RegistryPath())
	for _, k := range names {
		fmt.Fprintf(w, "  %-18s : %d\n", k, totals[k])
	}
	return nil
}

func printMetadata(w io.Writer, m checkpoint.Metadata, runs int) {
	fmt.Fprintf(w, "Run ID               : %s\n", m.RunID)
	fmt.Fprintf(w, "Simulated            : %s to %s (%d days)\n", m.StartDate, m.FinishDate, m.DaysSimulated)
	fmt.Fprintf(w, "Saved At             : %s\n", m.SavedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Seed                 : %d\n", m.Seed)
	fmt.Fprintf(w, "Runs In History      : %d\n", runs)
	kinds := make([]string, 0, len(m.Counts))
	for k := range m.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "Agents %-13s : %d\n", k, m.Counts[k])
	}
}
