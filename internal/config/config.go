package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/tier"
)

// EnvLicenseKey overrides the configured license key. When set it
// takes precedence over the config file and implicitly enables
// license validation and telemetry sync.
const EnvLicenseKey = "TOOLGATE_LICENSE_KEY"

// Categories toggles which record categories are included in a sync
// push. Exclusion applies at push and drain time, never at enqueue.
type Categories struct {
	Session      bool `yaml:"session"`
	Observations bool `yaml:"observations"`
	Usage        bool `yaml:"usage"`
	Audit        bool `yaml:"audit"`
}

// Config holds all runtime configuration. Loaded once at startup and
// treated as immutable afterwards; every component receives it by
// value.
type Config struct {
	LicenseKey      string `yaml:"license_key"`
	LicenseEndpoint string `yaml:"license_endpoint"`

	SyncEnabled  bool       `yaml:"sync_enabled"`
	SyncEndpoint string     `yaml:"sync_endpoint"`
	SyncInclude  Categories `yaml:"sync_include"`

	// DrainInterval is how often the serve loop re-attempts delivery
	// of queued payloads.
	DrainInterval time.Duration `yaml:"drain_interval"`

	// StateDir holds the SQLite database and the telemetry spool.
	StateDir string `yaml:"state_dir"`

	// ToolPrefix is the namespace prefix stripped from capability
	// names before tier lookup.
	ToolPrefix string `yaml:"tool_prefix"`

	// Capabilities overrides the built-in capability→tier mapping.
	Capabilities map[string]string `yaml:"capabilities"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		LicenseEndpoint: "https://license.toolgate.dev/v1/validate",
		SyncEnabled:     true,
		SyncEndpoint:    "https://telemetry.toolgate.dev/v1/batch",
		SyncInclude: Categories{
			Session:      true,
			Observations: true,
			Usage:        true,
			Audit:        true,
		},
		DrainInterval: 5 * time.Minute,
		StateDir:      defaultStateDir(),
		ToolPrefix:    tier.DefaultPrefix,
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "toolgate")
	}
	return filepath.Join(home, ".toolgate")
}

// Load reads configuration from a YAML file and applies the
// environment override. Empty path falls back to
// ~/.toolgate/config.yaml. Missing file returns defaults. Invalid
// YAML returns an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = filepath.Join(cfg.StateDir, "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg), nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	return applyEnv(cfg), nil
}

// applyEnv merges the environment override. The env key wins over the
// file and force-enables sync, since supplying a key is the operator's
// signal that the install is licensed.
func applyEnv(cfg Config) Config {
	if key := os.Getenv(EnvLicenseKey); key != "" {
		cfg.LicenseKey = key
		cfg.SyncEnabled = true
	}
	return cfg
}

// DBPath returns the SQLite database path inside the state dir.
func (c Config) DBPath() string {
	return filepath.Join(c.StateDir, "state.db")
}

// SpoolDir returns the directory record producers drop batch files
// into.
func (c Config) SpoolDir() string {
	return filepath.Join(c.StateDir, "spool")
}

// SyncConfigured reports whether telemetry delivery can happen at
// all. False means "feature disabled", not an error.
func (c Config) SyncConfigured() bool {
	return c.SyncEnabled && c.LicenseKey != "" && c.SyncEndpoint != ""
}

// TierPolicy builds the capability policy from the built-in mapping
// overlaid with the config's overrides.
func (c Config) TierPolicy() *tier.Policy {
	required := tier.DefaultRequirements()
	for name, s := range c.Capabilities {
		required[name] = tier.Parse(s)
	}

	prefix := c.ToolPrefix
	if prefix == "" {
		prefix = tier.DefaultPrefix
	}
	return tier.NewPolicy(prefix, required)
}
