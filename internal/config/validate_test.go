package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/surveil/internal/core"
	"gopkg.in/yaml.v3"
)

// stubModule is a basic module for testing.
type stubModule struct {
	id string
}

func (m *stubModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  core.ModuleID(m.id),
		New: func() core.Module { return &stubModule{id: m.id} },
	}
}

func registerStub(t *testing.T, id string) {
	t.Helper()
	if _, ok := core.GetModule(id); ok {
		return
	}
	core.RegisterModule(&stubModule{id: id})
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	id := "engine." + strings.ReplaceAll(t.Name(), "/", "_")
	registerStub(t, id)
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{id: {}},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig(t)
	cfg.Routing.Endpoints = map[string]string{"insider_trading": "http://localhost:9001"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version"},
		{"unsupported version", func(c *Config) { c.Version = "99" }, "unsupported version"},
		{"no modules", func(c *Config) { c.Modules = nil }, "at least one module"},
		{"unknown module", func(c *Config) { c.Modules["engine.nope"] = yaml.Node{} }, `unknown module "engine.nope"`},
		{"bad endpoint", func(c *Config) { c.Routing.Endpoints = map[string]string{"wash_trade": "ftp://x"} }, "routing.endpoints.wash_trade"},
		{"negative iterations", func(c *Config) { c.Analysis.MaxIterations = -1 }, "analysis.max_iterations"},
		{"negative ttl", func(c *Config) { c.Analysis.TaskTTL = -time.Minute }, "durations"},
		{"loop threshold of one", func(c *Config) { c.Analysis.LoopThreshold = 1 }, "analysis.loop_threshold"},
		{"bad eviction schedule", func(c *Config) { c.Analysis.EvictionSchedule = "hourly" }, "eviction_schedule"},
		{"bad exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }, "telemetry.exporter"},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Exporter = "otlp" }, "otlp_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestValidate_TwoEngines(t *testing.T) {
	registerStub(t, "engine.first")
	registerStub(t, "engine.second")
	cfg := &Config{
		Version: "1",
		Modules: map[string]yaml.Node{"engine.first": {}, "engine.second": {}},
	}
	cfg.applyDefaults()
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Fatalf("expected engine count error, got %v", err)
	}
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("SURVEIL_TEST_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "surveil.yaml")
	raw := `version: "1"
analysis:
  timeout: 90s
  max_iterations: 6
routing:
  endpoints:
    insider_trading: ${SURVEIL_TEST_URL:-http://localhost:9001}
modules:
  engine.anthropic:
    api_key: ${SURVEIL_TEST_KEY}
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Analysis.Timeout)
	}
	if cfg.Analysis.MaxIterations != 6 {
		t.Errorf("MaxIterations = %d, want 6", cfg.Analysis.MaxIterations)
	}
	dir := filepath.Dir(path)
	if cfg.Analysis.DataDir != filepath.Join(dir, defaultDataDir) || cfg.Analysis.OutputDir != filepath.Join(dir, defaultOutputDir) {
		t.Errorf("directories = %q/%q, want defaults next to the file", cfg.Analysis.DataDir, cfg.Analysis.OutputDir)
	}
	if got := cfg.Routing.Endpoints["insider_trading"]; got != "http://localhost:9001" {
		t.Errorf("endpoint = %q, want default value", got)
	}

	node := cfg.Modules["engine.anthropic"]
	var mod struct {
		APIKey string `yaml:"api_key"`
	}
	if err := node.Decode(&mod); err != nil {
		t.Fatal(err)
	}
	if mod.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want %q", mod.APIKey, "sk-test")
	}
}

func TestLoad_UnresolvedVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "surveil.yaml")
	if err := os.WriteFile(path, []byte("version: ${SURVEIL_DEFINITELY_UNSET}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "SURVEIL_DEFINITELY_UNSET") {
		t.Fatalf("expected unresolved variable error, got %v", err)
	}
}

func TestLoad_KeepsAbsoluteDirectories(t *testing.T) {
	t.Parallel()

	data := t.TempDir()
	path := filepath.Join(t.TempDir(), "surveil.yaml")
	raw := "version: \"1\"\nanalysis:\n  data_dir: " + data + "\n  output_dir: reports\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analysis.DataDir != data {
		t.Errorf("DataDir = %q, want %q", cfg.Analysis.DataDir, data)
	}
	if want := filepath.Join(filepath.Dir(path), "reports"); cfg.Analysis.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", cfg.Analysis.OutputDir, want)
	}
}

func TestResolve_LoadOrder(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http":     {},
		"engine.anthropic": {},
		"metrics.custom":   {},
		"storage.sqlite":   {},
	}}
	got := Resolve(cfg)
	want := []string{"storage.sqlite", "engine.anthropic", "gateway.http", "metrics.custom"}
	if !slices.Equal(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}
