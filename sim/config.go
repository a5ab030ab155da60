package sim

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/retail-sim/retail-sim/sim/agent"
	"github.com/retail-sim/retail-sim/sim/checkpoint"
	"github.com/retail-sim/retail-sim/sim/registry"
)

// Modes select the checkpoint root and registry file.
const (
	ModeTest = "test"
	ModeProd = "prod"
)

// Registry backend names.
const (
	RegistryFile   = "file"
	RegistrySQLite = "sqlite"
)

// StartDateLayouts are the accepted start date formats.
var StartDateLayouts = []string{"20060102", "2006-01-02"}

// Config holds the parameters of one simulation run.
type Config struct {
	Mode                 string  `yaml:"mode"`
	DataDir              string  `yaml:"data_dir"`
	StartDate            string  `yaml:"start_date"` // empty resumes from the checkpoint finish date
	MaxSteps             int     `yaml:"max_steps"`
	NCustomers1          int     `yaml:"n_customers1"`
	NCustomers2          int     `yaml:"n_customers2"`
	NProductsPerCategory int     `yaml:"n_products_per_category"`
	VisitProb            float64 `yaml:"visit_prob"` // mean daily Cust1 visit probability
	Seed                 *int64  `yaml:"seed"` // nil draws a fresh seed per run
	Compression          string  `yaml:"compression"`
	Retention            int     `yaml:"retention"`
	RegistryBackend      string  `yaml:"registry_backend"`

	Sources SourcesConfig `yaml:"sources"`
}

// SourcesConfig locates the datasets agents are learned from. Relative
// paths resolve against the data directory.
type SourcesConfig struct {
	Cust1Data       string   `yaml:"cust1_data"`
	Cust2Data       string   `yaml:"cust2_data"`
	Taxonomy        string   `yaml:"taxonomy"`
	CategoryMapping string   `yaml:"category_mapping"`
	PriceStore      string   `yaml:"price_store"`
	PriceTable      string   `yaml:"price_table"`
	PriceSources    []string `yaml:"price_sources"`
	MaxRows         int      `yaml:"max_rows"`
	Clusters        int      `yaml:"clusters"`
	Cutoff          int      `yaml:"cutoff"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Mode:                 ModeTest,
		DataDir:              "data_source",
		MaxSteps:             1,
		NCustomers1:          250,
		NCustomers2:          250,
		NProductsPerCategory: 10,
		VisitProb:            0.10,
		Compression:          "zstd",
		Retention:            checkpoint.DefaultRetention,
		RegistryBackend:      RegistryFile,
		Sources: SourcesConfig{
			Cust1Data:       "Walmart_cust.csv",
			Cust2Data:       "Walmart_commerce.csv",
			Taxonomy:        "product_taxonomy.csv",
			CategoryMapping: "category_mapping.csv",
			PriceStore:      "category_kde_distributions.zip",
			PriceTable:      "product_price_table.csv",
			MaxRows:         10000,
			Clusters:        5,
			Cutoff:          50,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// SetSeed fixes the master seed, making the run reproducible.
func (c *Config) SetSeed(seed int64) { c.Seed = &seed }

// ResolveSeed returns the master seed. When none is set a fresh one is
// drawn from the randomly seeded global source and stored, so the run can
// be replayed with it.
func (c *Config) ResolveSeed() int64 {
	if c.Seed == nil {
		c.SetSeed(rand.Int63())
	}
	return *c.Seed
}

// Validate checks parameter ranges and names.
func (c *Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.NProductsPerCategory <= 0 {
		return fmt.Errorf("n_products_per_category must be positive, got %d", c.NProductsPerCategory)
	}
	if c.NCustomers1 < 0 || c.NCustomers2 < 0 {
		return fmt.Errorf("customer counts must be non-negative, got %d and %d", c.NCustomers1, c.NCustomers2)
	}
	if c.NCustomers1+c.NCustomers2 <= 0 {
		return fmt.Errorf("total customer count must be positive")
	}
	for kind, n := range map[agent.Kind]int{agent.KindCust1: c.NCustomers1, agent.KindCust2: c.NCustomers2} {
		if ceiling, ok := registry.Ceiling(kind); ok && int64(n) > ceiling-registry.Bases[kind] {
			return fmt.Errorf("%s count %d exceeds its id range of %d", kind, n, ceiling-registry.Bases[kind])
		}
	}
	if c.VisitProb < 0 || c.VisitProb > 1 {
		return fmt.Errorf("visit_prob must be in [0, 1], got %f", c.VisitProb)
	}
	if c.StartDate != "" {
		if _, err := ParseStartDate(c.StartDate); err != nil {
			return err
		}
	}
	if c.Mode != ModeTest && c.Mode != ModeProd {
		return fmt.Errorf("unknown mode %q; valid: test, prod", c.Mode)
	}
	if _, err := checkpoint.CodecByName(c.Compression); err != nil {
		return err
	}
	if c.Retention < 1 {
		return fmt.Errorf("retention must be positive, got %d", c.Retention)
	}
	if c.RegistryBackend != RegistryFile && c.RegistryBackend != RegistrySQLite {
		return fmt.Errorf("unknown registry backend %q; valid: file, sqlite", c.RegistryBackend)
	}
	if c.Sources.Clusters < 1 {
		return fmt.Errorf("sources.clusters must be positive, got %d", c.Sources.Clusters)
	}
	return nil
}

// ParseStartDate accepts any of StartDateLayouts.
func ParseStartDate(s string) (time.Time, error) {
	for _, layout := range StartDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("start date %q matches neither YYYYMMDD nor YYYY-MM-DD", s)
}

func (c *Config) suffix() string {
	if c.Mode == ModeProd {
		return ""
	}
	return "_test"
}

// CheckpointRoot is the directory checkpoints are kept under.
func (c *Config) CheckpointRoot() string {
	return filepath.Join(c.DataDir, "agm_agent_save"+c.suffix())
}

// RegistryPath is the identifier registry location.
func (c *Config) RegistryPath() string {
	if c.RegistryBackend == RegistrySQLite {
		return filepath.Join(c.DataDir, "id_seeds"+c.suffix()+".db")
	}
	return filepath.Join(c.DataDir, "id_seeds"+c.suffix()+".json")
}

// ExportRoot is where result tables are written.
func (c *Config) ExportRoot() string {
	return filepath.Join(c.DataDir, "agm_output"+c.suffix())
}

// Path resolves a source path against the data directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
