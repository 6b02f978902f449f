// Package config handles tracefabric configuration.
//
// Configuration is loaded with overlay semantics:
//
//  1. Start with built-in defaults (embedded via go:embed from default.toml)
//  2. Overlay with config file values (if file exists)
//  3. CLI flags and environment variables override at runtime (handled by CLI layer)
//
// The TOML decoder only sets fields present in the file, leaving
// unspecified fields at their default values. If the config file exists
// but is invalid, Load returns an error rather than silently falling
// back to defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/logging"
)

//go:embed default.toml
var defaultConfigTOML string

// DefaultConfigPath is the default path to the tracefabric config file.
const DefaultConfigPath = "/etc/tracefabric/tracefabric.toml"

// Backend selects how register blocks are provided.
type Backend string

const (
	BackendSim  Backend = "sim"
	BackendMMIO Backend = "mmio"
)

// Config is the top-level tracefabric configuration.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Topology TopologyConfig `toml:"topology"`
	Hardware HardwareConfig `toml:"hardware"`
	ETM      ETMConfig      `toml:"etm"`
	Ledger   LedgerConfig   `toml:"ledger"`
	CSR      []CSRConfig    `toml:"csr"`
}

// LoggingConfig controls logging behaviour.
type LoggingConfig struct {
	// Level is the log spec (e.g., "info" or "info,manager=debug").
	Level string `toml:"level"`
	// Format is the output format: "text" or "json".
	Format string `toml:"format"`
	// Components provides an alternative way to specify per-component levels.
	Components map[string]string `toml:"components"`
}

// ToSpec converts the LoggingConfig to a log spec string.
// If Level is set, it takes precedence. Otherwise, Components are used.
func (c *LoggingConfig) ToSpec() string {
	if c.Level != "" {
		return c.Level
	}
	if len(c.Components) == 0 {
		return ""
	}

	parts := make([]string, 0, len(c.Components)+1)
	parts = append(parts, "info")
	for component, level := range c.Components {
		parts = append(parts, component+"="+level)
	}
	return strings.Join(parts, ",")
}

// TopologyConfig locates the topology description.
type TopologyConfig struct {
	Path string `toml:"path"`
}

// HardwareConfig controls register access.
type HardwareConfig struct {
	Backend Backend `toml:"backend"`
	// DevMem is the physical memory device used by the mmio backend.
	DevMem string `toml:"devmem"`
	// PollTimeout bounds every hardware wait.
	PollTimeout time.Duration `toml:"poll_timeout"`
	// PreferredSink is used when a request names no sink and no
	// sink is enabled.
	PreferredSink tracefabric.DeviceID `toml:"preferred_sink"`
}

// ETMConfig sets trace unit filtering for perf sessions.
type ETMConfig struct {
	ExcludeKernel bool `toml:"exclude_kernel"`
	ExcludeUser   bool `toml:"exclude_user"`
}

// LedgerConfig controls the session ledger.
type LedgerConfig struct {
	Enabled bool `toml:"enabled"`
}

// CSRConfig describes one coresight control and status register block.
type CSRConfig struct {
	Name string `toml:"name"`
	Base uint64 `toml:"base"`
}

// DefaultConfig returns the default configuration from the embedded default.toml.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		// default.toml is embedded at build time.
		panic(fmt.Sprintf("config: invalid default.toml: %v", err))
	}
	return cfg
}

// Load reads configuration from a file path with overlay semantics.
//
// Behaviour:
//   - File missing: returns default configuration (no error)
//   - File exists and valid: overlays file values onto defaults
//   - File exists but invalid: returns error (fail fast)
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("config file %s: unknown keys: %v", path, undecoded)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseSpec(c.Logging.ToSpec()); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	switch c.Hardware.Backend {
	case BackendSim:
	case BackendMMIO:
		if c.Hardware.DevMem == "" {
			errs = append(errs, errors.New("hardware: mmio backend requires devmem"))
		}
	default:
		errs = append(errs, fmt.Errorf("hardware: unknown backend %q", c.Hardware.Backend))
	}
	if c.Hardware.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("hardware: poll_timeout must be positive, got %s", c.Hardware.PollTimeout))
	}

	seen := make(map[string]bool)
	for i, csr := range c.CSR {
		switch {
		case csr.Name == "":
			errs = append(errs, fmt.Errorf("csr[%d]: missing name", i))
		case seen[csr.Name]:
			errs = append(errs, fmt.Errorf("csr[%d]: duplicate name %q", i, csr.Name))
		}
		if csr.Base == 0 {
			errs = append(errs, fmt.Errorf("csr[%d]: missing base", i))
		}
		seen[csr.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
