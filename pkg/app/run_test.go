package app

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/config"
	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/engine/enginetest"
	"github.com/flemzord/surveil/internal/evidence"
	"github.com/flemzord/surveil/internal/task"
)

const decisionJSON = `{"determination":"ESCALATE","genuine_alert_confidence":82,"false_positive_confidence":10,` +
	`"key_findings":["Purchases preceded the announcement by two days"],"favorable_indicators":["Trader sits on the deal team"],` +
	`"mitigating_indicators":[],"reasoning_narrative":"The trader had access to deal information and bought ahead of the public announcement.",` +
	`"recommended_action":"Escalate to compliance for interview."}`

func init() {
	core.RegisterModule(&testEngineModule{})
}

// testEngineModule publishes a mock engine that answers every call with
// decisionJSON.
type testEngineModule struct{}

func (m *testEngineModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "engine.test", New: func() core.Module { return &testEngineModule{} }}
}

func (m *testEngineModule) Provision(ctx *core.AppContext) error {
	ctx.RegisterService(engine.Service, &enginetest.MockEngine{
		CompleteFunc: func(context.Context, engine.Request) (engine.Response, error) {
			return engine.Response{Content: decisionJSON}, nil
		},
	})
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	data := t.TempDir()
	for _, name := range evidence.Files() {
		if err := os.WriteFile(filepath.Join(data, name), []byte("id\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.Parse([]byte(`version: "1"
analysis:
  data_dir: ` + data + `
  output_dir: ` + t.TempDir() + `
routing:
  endpoints:
    wash_trade: http://127.0.0.1:9/agents/wash_trade
modules:
  engine.test: {}
`))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "surveil")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "surveil.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
	if DefaultConfigPath() != cfgPath {
		t.Errorf("DefaultConfigPath() = %q, want %q", DefaultConfigPath(), cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	for name, path := range map[string]string{
		"missing file":      "/nonexistent/config.yaml",
		"invalid yaml":      write("bad.yaml", "not: valid: yaml: ["),
		"validation errors": write("noversion.yaml", "modules:\n  foo: {}"),
	} {
		if _, _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if err := Run(RunParams{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("Run: expected error for missing config")
	}
}

func TestBuild_WiresPipeline(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer
	rt, err := Build(context.Background(), cfg, Options{LogWriter: &logs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(rt.Close)

	for _, c := range alert.Categories() {
		if !rt.Runner.Supports(c) {
			t.Errorf("no loop for %s", c)
		}
	}
	if _, ok := rt.Store.(*decision.FileStore); !ok {
		t.Errorf("default store = %T, want *decision.FileStore", rt.Store)
	}
	for _, name := range []string{task.RunnerService, decision.StoreService, "router", "telemetry.metrics", engine.Service} {
		if _, ok := rt.Context.Service(name); !ok {
			t.Errorf("service %q not registered", name)
		}
	}
	if u, ok := rt.Router.Endpoint(alert.WashTrade); !ok || !strings.HasSuffix(u, "/agents/wash_trade") {
		t.Errorf("wash trade endpoint = %q, %v", u, ok)
	}
	if err := rt.Preflight(); err != nil {
		t.Errorf("Preflight: %v", err)
	}
}

func TestBuild_RunPublishes(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg, Options{LogWriter: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	a := &alert.Alert{ID: "ALT-301", Type: "Insider Trading"}
	rec, err := rt.Runner.Run(context.Background(), a, rt.Classifier.Classify(a))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.Status != task.StatusComplete || rec.Decision == nil || rec.Decision.Determination != decision.Escalate {
		t.Fatalf("record = %+v", rec)
	}
	rt.Close()

	out := cfg.Analysis.OutputDir
	if _, err := rt.Store.Load(context.Background(), "ALT-301"); err != nil {
		t.Errorf("decision not stored: %v", err)
	}
	if _, err := os.Stat(decision.ReportPath(filepath.Join(out, "reports"), "ALT-301")); err != nil {
		t.Errorf("report not written: %v", err)
	}

	f, err := os.Open(filepath.Join(out, auditFile))
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Errorf("audit lines = %d, want 1", lines)
	}
	rec2 := httptest.NewRecorder()
	rt.Metrics.Handler().ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec2.Body.String(), `determination="ESCALATE"`) {
		t.Error("decision not observed by metrics")
	}
}

func TestBuild_RequiresEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Modules = nil
	_, err := Build(context.Background(), cfg, Options{LogWriter: &bytes.Buffer{}})
	if !errors.Is(err, ErrNoEngine) {
		t.Fatalf("expected ErrNoEngine, got %v", err)
	}
}

func TestBuild_ServeAddsMaintenance(t *testing.T) {
	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg, Options{LogWriter: &bytes.Buffer{}, Serve: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(rt.Close)

	var ids []string
	for _, m := range rt.App.Modules() {
		ids = append(ids, string(m.ModuleInfo().ID))
	}
	want := "engine.test task.runner cron.scheduler"
	if got := strings.Join(ids, " "); got != want {
		t.Errorf("modules = %q, want %q", got, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rt.Serve(ctx); err != nil {
		t.Errorf("Serve: %v", err)
	}
}

func TestNewLogger_RedactsConfiguredSecrets(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`version: "1"
modules:
  gateway.http:
    auth:
      bearer_token: "gateway-token-42"
`))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, Secrets(cfg)...)
	logger.Info("client presented gateway-token-42", "header", "Bearer gateway-token-42")

	if strings.Contains(buf.String(), "gateway-token-42") {
		t.Errorf("secret leaked into log: %s", buf.String())
	}
}
