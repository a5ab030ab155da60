package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	sim "github.com/retail-sim/retail-sim/sim"
)

// Environment variables read after the config file.
const (
	envMode    = "RETAILSIM_MODE"
	envDataDir = "RETAILSIM_DATA_DIR"
)

var (
	logLevel   string // Log verbosity level
	logFile    string // Rotating log file, in addition to stderr
	configPath string // YAML config file
	dataDir    string // Root of source data, checkpoints and exports
	mode       string // test or prod
	seed       int64  // Master seed
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "retail-sim",
	Short: "Agent-based simulator for retail customers and inventory",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel, logFile)
	},
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the level and the sinks: stderr always, plus a
// rotating file when path is set. Colours are used only on a terminal.
func setupLogging(level, path string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	logrus.SetLevel(lvl)

	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   tty && path == "",
		DisableColors: !tty || path != "",
	})

	var out io.Writer = os.Stderr
	if path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    16, // megabytes
			MaxBackups: 8,
			MaxAge:     90, // days
			Compress:   true,
		})
	}
	logrus.SetOutput(out)
	return nil
}

// loadConfig layers the configuration: defaults, the YAML file, .env and
// the environment, then every flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (sim.Config, error) {
	cfg := sim.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = sim.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}
	applyEnv(&cfg)

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("mode") {
		cfg.Mode = mode
	}
	if flags.Changed("seed") {
		cfg.SetSeed(seed)
	}
	applyRunFlags(cmd, &cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	logrus.WithFields(logrus.Fields{
		"mode":     cfg.Mode,
		"data_dir": cfg.DataDir,
		"seed":     cfg.ResolveSeed(),
	}).Info("configuration loaded; pass --seed to replay")
	return cfg, nil
}

func applyEnv(cfg *sim.Config) {
	if v := os.Getenv(envMode); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv(envDataDir); v != "" {
		cfg.DataDir = v
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this rotating file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "data_source", "Directory holding source data, checkpoints and exports")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", sim.ModeTest, "Checkpoint and registry namespace (test, prod)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 0, "Master seed for every random draw (default: fresh per run)")

	rootCmd.AddCommand(runCmd, fitCmd, inspectCmd)
}
