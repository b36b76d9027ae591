// Package config loads reaper configuration from a YAML file plus
// environment overrides. The live/dry-run gate is read once per
// invocation and threaded as a value; nothing here is mutated after
// load.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LiveModeEnv is the environment variable that arms destructive
// actions. Only the literal "true" (case-insensitive) arms them;
// absence or any other value means dry-run.
const LiveModeEnv = "LIVE_MODE"

// Config represents the reaper configuration.
type Config struct {
	Region       string         `yaml:"region"`
	LiveMode     bool           `yaml:"-"` // environment only, never from file
	WaitBudget   time.Duration  `yaml:"wait_budget"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	WALDir       string         `yaml:"wal_dir"`
	LedgerPath   string         `yaml:"ledger_path"`
	MetricsAddr  string         `yaml:"metrics_addr"`
	Notifier     NotifierConfig `yaml:"notifier,omitempty"`
}

// NotifierConfig configures the log-subscription notifier.
type NotifierConfig struct {
	LogGroup     string        `yaml:"log_group"`
	WebhookURL   string        `yaml:"webhook_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Lookback     time.Duration `yaml:"lookback"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Region:       "us-east-1",
		WaitBudget:   4 * time.Minute,
		PollInterval: 15 * time.Second,
		WALDir:       "/var/lib/reaper/wal",
		LedgerPath:   "/var/lib/reaper/ledger.db",
		MetricsAddr:  ":9090",
		Notifier: NotifierConfig{
			PollInterval: time.Minute,
			Lookback:     15 * time.Minute,
		},
	}
}

// Load reads configuration from an optional file, applies defaults and
// the environment gate, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.LiveMode = LiveModeFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LiveModeFromEnv reports whether LIVE_MODE is set to the literal
// "true", matched case-insensitively. Everything else is dry-run.
func LiveModeFromEnv() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(LiveModeEnv)), "true")
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.WaitBudget <= 0 {
		return fmt.Errorf("wait_budget must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.PollInterval > c.WaitBudget {
		return fmt.Errorf("poll_interval %s exceeds wait_budget %s", c.PollInterval, c.WaitBudget)
	}
	return nil
}
