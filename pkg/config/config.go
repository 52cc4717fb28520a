package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/commontoolsinc/loom/pkg/cfc"
	"github.com/commontoolsinc/loom/pkg/log"
)

// Config is the runtime configuration loaded from YAML. CLI flags
// override file values.
type Config struct {
	// DataDir holds the durable store; empty keeps state in memory.
	DataDir string `yaml:"data_dir"`

	Log struct {
		Level log.Level `yaml:"level"`
		JSON  bool      `yaml:"json"`
	} `yaml:"log"`

	Flow struct {
		// Mode: disabled, dry-run, or enforcing.
		Mode cfc.Mode `yaml:"mode"`
		// Lattice configures the classification order; empty uses the
		// reference lattice.
		Lattice cfc.LatticeConfig `yaml:"lattice"`
	} `yaml:"flow"`

	// MaxRetries bounds conflict-driven retries; negative uses the
	// engine default.
	MaxRetries int `yaml:"max_retries"`

	// MetricsAddr serves the Prometheus endpoint when set, e.g.
	// ":9464".
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{MaxRetries: -1}
	cfg.Log.Level = log.InfoLevel
	cfg.Flow.Mode = cfc.ModeDisabled
	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Lattice builds the configured classification lattice.
func (c *Config) Lattice() (*cfc.Lattice, error) {
	if len(c.Flow.Lattice.Labels) == 0 {
		return cfc.NewReferenceLattice(), nil
	}
	return cfc.FromConfig(c.Flow.Lattice)
}
