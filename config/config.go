// Package config holds the rollout engine's JSON-configurable knobs.
//
// Follows orchestrate/config/workflows.go's pattern exactly: plain structs
// used only during initialization, then discarded once their values are
// copied into the domain objects that actually run. Only RolloutConfig is
// read today (kettlectl copies it into rollout.Engine); SignalBusConfig,
// HarnessConfig and StoreConfig are not read by any package. Observer fields are strings so a JSON config file can
// name an observer implementation ("noop", "slog") resolved at runtime
// rather than unmarshal an interface directly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SignalBusConfig configures the process-wide signal bus. It has no
// per-instance knobs today (signal names are a closed set defined by the
// signalbus package itself); it exists so the top-level Config has a
// predictable shape to extend, matching ConditionalConfig's role in the
// teacher.
type SignalBusConfig struct {
	Observer string `json:"observer"`
}

func DefaultSignalBusConfig() SignalBusConfig {
	return SignalBusConfig{Observer: "slog"}
}

func (c *SignalBusConfig) Merge(source *SignalBusConfig) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// HarnessConfig holds a poll interval for the thread harness. The harness
// does not read it: harness.Wait always polls at its fixed one-second
// pollInterval.
type HarnessConfig struct {
	// PollIntervalMs is a poll interval in milliseconds; PollInterval
	// reports zero or less as one second.
	PollIntervalMs int `json:"poll_interval_ms"`

	Observer string `json:"observer"`
}

func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{
		PollIntervalMs: int(time.Second / time.Millisecond),
		Observer:       "slog",
	}
}

func (c *HarnessConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *HarnessConfig) Merge(source *HarnessConfig) {
	if source.PollIntervalMs > 0 {
		c.PollIntervalMs = source.PollIntervalMs
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// RolloutConfig configures one Engine: which monitors to start and how
// fresh a generated task tree must be before rollout_async will launch it.
type RolloutConfig struct {
	// Monitors names monitor.Func registrations to start for every
	// rollout this engine runs, matching rollout.py's `config["monitors"]`.
	Monitors []string `json:"monitors"`

	// FreshnessWindowSeconds bounds how old generate_tasks_dt may be for
	// rollout_async to proceed. Zero means rollout.defaultFreshnessWindow
	// (5 minutes), matching the engine's stated default.
	FreshnessWindowSeconds int `json:"freshness_window_seconds"`

	Observer string `json:"observer"`
}

func DefaultRolloutConfig() RolloutConfig {
	return RolloutConfig{
		Monitors:               nil,
		FreshnessWindowSeconds: 300,
		Observer:               "slog",
	}
}

func (c *RolloutConfig) FreshnessWindow() time.Duration {
	if c.FreshnessWindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

func (c *RolloutConfig) Merge(source *RolloutConfig) {
	if len(source.Monitors) > 0 {
		c.Monitors = source.Monitors
	}
	if source.FreshnessWindowSeconds > 0 {
		c.FreshnessWindowSeconds = source.FreshnessWindowSeconds
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// StoreConfig configures the persistence adapter. The in-memory
// implementation has nothing to configure beyond which backend to use;
// Backend exists so a future database-backed Store has somewhere to put a
// DSN without changing the Config shape.
type StoreConfig struct {
	// Backend names the Store implementation ("memory" is the only one
	// this module ships). kettlectl does not read it.
	Backend string `json:"backend"`

	// DSN is passed through to non-memory backends; unused today.
	DSN string `json:"dsn"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Backend: "memory"}
}

func (c *StoreConfig) Merge(source *StoreConfig) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.DSN != "" {
		c.DSN = source.DSN
	}
}

// Config aggregates every subsystem's configuration, mirroring kernel.Config's
// aggregate-with-delegating-Merge shape.
type Config struct {
	SignalBus SignalBusConfig `json:"signal_bus"`
	Harness   HarnessConfig   `json:"harness"`
	Rollout   RolloutConfig   `json:"rollout"`
	Store     StoreConfig     `json:"store"`
}

// Default returns a Config with every subsystem at its documented default.
func Default() Config {
	return Config{
		SignalBus: DefaultSignalBusConfig(),
		Harness:   DefaultHarnessConfig(),
		Rollout:   DefaultRolloutConfig(),
		Store:     DefaultStoreConfig(),
	}
}

// Merge overlays non-zero fields from source onto c, delegating to each
// subsystem's own Merge.
func (c *Config) Merge(source *Config) {
	c.SignalBus.Merge(&source.SignalBus)
	c.Harness.Merge(&source.Harness)
	c.Rollout.Merge(&source.Rollout)
	c.Store.Merge(&source.Store)
}

// Load reads a JSON config file and merges it over Default(), matching
// kernel.LoadConfig's read-unmarshal-merge shape exactly.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
