// Package config handles configuration loading and management for the fuzzer.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/fEst1ck/coverage-playground/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for a fuzzing run (§3, §6).
type Config struct {
	SeedDir         string         `yaml:"seed_dir"`
	OutputDir       string         `yaml:"output_dir"`
	TrackedMetrics  []types.Metric `yaml:"tracked_metrics"`
	FeedbackMetrics []types.Metric `yaml:"feedback_metrics"`
	Delivery        DeliveryConfig `yaml:"delivery"`
	Timeout         time.Duration  `yaml:"timeout"`
	StatsPeriod     time.Duration  `yaml:"stats_period"`
	RegionSize      int            `yaml:"region_size"`
	TargetCmd       []string       `yaml:"-"` // set from argv after "--", never serialized
}

// DeliveryConfig describes how input reaches the target (§3, §6).
type DeliveryConfig struct {
	Mode types.DeliveryMode `yaml:"-"`
}

// DefaultConfig returns the default configuration, in the style of the
// teacher's zero-argument DefaultConfig() constructor.
func DefaultConfig() *Config {
	return &Config{
		TrackedMetrics:  []types.Metric{types.Block, types.Edge, types.Path},
		FeedbackMetrics: []types.Metric{types.Edge},
		Timeout:         2 * time.Second,
		StatsPeriod:     30 * time.Second,
		RegionSize:      1 << 20, // entries, not bytes
	}
}

// Load reads a YAML config file and overlays it onto DefaultConfig(). An
// empty path is not an error; it simply returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate enforces the §3 Configuration invariants.
func (c *Config) Validate() error {
	if len(c.TrackedMetrics) == 0 {
		return fmt.Errorf("config: tracked_metrics must be non-empty")
	}
	if len(c.FeedbackMetrics) == 0 {
		return fmt.Errorf("config: feedback_metrics must be non-empty")
	}
	tracked := types.NewMetricSet(c.TrackedMetrics...)
	feedback := types.NewMetricSet(c.FeedbackMetrics...)
	if !feedback.Subset(tracked) {
		return fmt.Errorf("config: feedback_metrics must be a subset of tracked_metrics")
	}
	if c.SeedDir == "" {
		return fmt.Errorf("config: seed_dir is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("config: output_dir is required")
	}
	if len(c.TargetCmd) == 0 {
		return fmt.Errorf("config: target command is required after --")
	}
	if c.RegionSize <= 0 {
		return fmt.Errorf("config: region_size must be positive")
	}
	return nil
}

// AtAtToken is the placeholder substituted with the mutant's file path in
// FileAt delivery mode (§6).
const AtAtToken = "@@"

// DetectDelivery inspects the target command for the @@ placeholder and
// returns the resulting DeliveryConfig. Absence of @@ means Stdin mode.
func DetectDelivery(targetCmd []string) DeliveryConfig {
	for _, a := range targetCmd {
		if a == AtAtToken {
			return DeliveryConfig{Mode: types.FileAt}
		}
	}
	return DeliveryConfig{Mode: types.Stdin}
}

// TrackedSet returns the tracked metrics as a MetricSet.
func (c *Config) TrackedSet() types.MetricSet {
	return types.NewMetricSet(c.TrackedMetrics...)
}

// FeedbackSet returns the feedback metrics as a MetricSet.
func (c *Config) FeedbackSet() types.MetricSet {
	return types.NewMetricSet(c.FeedbackMetrics...)
}
