package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/cron"
)

var validExporters = map[string]bool{"none": true, "stdout": true, "otlp": true}

// Validate checks the structural validity of a Config.
// It verifies the version field, the referenced module IDs, that exactly one
// reasoning engine and at most one decision store are configured, and the
// analysis, routing and telemetry sections.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	namespaces := make(map[string]int)
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		namespaces[core.ModuleID(id).Namespace()]++
	}
	if n := namespaces["engine"]; n > 1 {
		errs = append(errs, fmt.Errorf("config: %d engine modules configured, want exactly one", n))
	}
	if n := namespaces["storage"]; n > 1 {
		errs = append(errs, fmt.Errorf("config: %d storage modules configured, want at most one", n))
	}

	errs = append(errs, validateAnalysis(cfg.Analysis)...)
	errs = append(errs, validateRouting(cfg.Routing)...)

	if !validExporters[cfg.Telemetry.Exporter] {
		errs = append(errs, fmt.Errorf("config: telemetry.exporter %q must be one of none, stdout, otlp", cfg.Telemetry.Exporter))
	}
	if cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, errors.New("config: telemetry.otlp_endpoint is required with the otlp exporter"))
	}

	return errors.Join(errs...)
}

func validateAnalysis(a AnalysisConfig) []error {
	var errs []error
	fields := []struct {
		name  string
		value int
	}{
		{"max_iterations", a.MaxIterations},
		{"loop_threshold", a.LoopThreshold},
		{"token_budget", a.TokenBudget},
		{"debug_messages", a.DebugMessages},
		{"lookback_days", a.LookbackDays},
		{"buffer_size", a.BufferSize},
		{"max_concurrent", a.MaxConcurrent},
	}
	for _, f := range fields {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("config: analysis.%s must not be negative", f.name))
		}
	}
	if a.LoopThreshold == 1 {
		errs = append(errs, errors.New("config: analysis.loop_threshold must be at least 2; 1 rejects the first tool call"))
	}
	if a.Timeout < 0 || a.KeepAliveInterval < 0 || a.TaskTTL < 0 {
		errs = append(errs, errors.New("config: analysis durations must not be negative"))
	}
	if a.EvictionSchedule != "" {
		if _, err := cron.ParseSchedule(a.EvictionSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: analysis.eviction_schedule: %w", err))
		}
	}
	return errs
}

func validateRouting(r RoutingConfig) []error {
	var errs []error
	for category, raw := range r.Endpoints {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: routing.endpoints.%s: %q is not an http(s) URL", category, raw))
		}
	}
	if r.Timeout < 0 {
		errs = append(errs, errors.New("config: routing.timeout must not be negative"))
	}
	return errs
}
