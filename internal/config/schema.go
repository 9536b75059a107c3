// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for surveil.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Analysis  AnalysisConfig  `yaml:"analysis"`
	Routing   RoutingConfig   `yaml:"routing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "engine.anthropic").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// AnalysisConfig tunes the reasoning loop, the event stream and task tracking.
// Zero values fall back to the defaults of the consuming package.
type AnalysisConfig struct {
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`

	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
	LoopThreshold int           `yaml:"loop_threshold"`
	TokenBudget   int           `yaml:"token_budget"`
	DebugMessages int           `yaml:"debug_messages"`
	LookbackDays  int           `yaml:"lookback_days"`

	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	BufferSize        int           `yaml:"buffer_size"`
	MaxConcurrent     int           `yaml:"max_concurrent"`

	TaskTTL          time.Duration `yaml:"task_ttl"`
	EvictionSchedule string        `yaml:"eviction_schedule"`
}

// RoutingConfig configures the alert router.
type RoutingConfig struct {
	// Endpoints maps a category name (insider_trading, wash_trade) to the
	// base URL of the processor serving it.
	Endpoints map[string]string `yaml:"endpoints"`

	Timeout time.Duration `yaml:"timeout"`

	// Rules overrides the built-in classification lists per category.
	Rules map[string]RuleSet `yaml:"rules,omitempty"`
}

// RuleSet holds the classification lists of one category.
type RuleSet struct {
	Types     []string `yaml:"types"`
	RuleCodes []string `yaml:"rule_codes"`
	Keywords  []string `yaml:"keywords"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	Exporter     string `yaml:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

const (
	defaultDataDir   = "data"
	defaultOutputDir = "output"
)

func (c *Config) applyDefaults() {
	if c.Analysis.DataDir == "" {
		c.Analysis.DataDir = defaultDataDir
	}
	if c.Analysis.OutputDir == "" {
		c.Analysis.OutputDir = defaultOutputDir
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "surveil"
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "none"
	}
}
