package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := NewAppContext(logger, "/data", "/out")
	child := ctx.ForModule("engine.anthropic")

	child.Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("engine.anthropic")) {
		t.Errorf("expected child logger to contain module ID, got: %s", buf.String())
	}
	if child.OutputDir != "/out" {
		t.Errorf("OutputDir = %q, want %q", child.OutputDir, "/out")
	}
}

func TestAppContext_ForModule_SharesServices(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(nil, "/data", "/out")
	child := ctx.ForModule("storage.file")
	child.RegisterService("decision.store", 42)

	got, ok := ctx.Service("decision.store")
	if !ok {
		t.Fatal("expected service registered by child to be visible on parent")
	}
	if got != 42 {
		t.Errorf("service = %v, want 42", got)
	}
}

func TestServiceAs(t *testing.T) {
	t.Parallel()

	ctx := NewAppContext(nil, "", "")
	ctx.RegisterService("name", "surveil")

	s, err := ServiceAs[string](ctx, "name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "surveil" {
		t.Errorf("got %q, want %q", s, "surveil")
	}

	if _, err := ServiceAs[int](ctx, "name"); err == nil {
		t.Error("expected type mismatch error")
	}
	if _, err := ServiceAs[string](ctx, "missing"); err == nil {
		t.Error("expected missing service error")
	}
	if names := ctx.ServiceNames(); len(names) != 1 || names[0] != "name" {
		t.Errorf("ServiceNames = %v, want [name]", names)
	}
}

func TestModuleID_Namespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   ModuleID
		want string
	}{
		{"engine.anthropic", "engine"},
		{"storage.sqlite", "storage"},
		{"gateway", "gateway"},
	}
	for _, tt := range tests {
		if got := tt.id.Namespace(); got != tt.want {
			t.Errorf("%s.Namespace() = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestNamespaces(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "storage.sqlite"})
	RegisterModule(&trackingModule{id: "engine.anthropic"})
	RegisterModule(&trackingModule{id: "storage.file"})

	got := Namespaces()
	want := map[string][]ModuleID{
		"engine":  {"engine.anthropic"},
		"storage": {"storage.file", "storage.sqlite"},
	}
	if len(got) != len(want) {
		t.Fatalf("Namespaces() = %v, want %v", got, want)
	}
	for ns, ids := range want {
		if !slices.Equal(got[ns], ids) {
			t.Errorf("Namespaces()[%s] = %v, want %v", ns, got[ns], ids)
		}
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "engine.anthropic"})
	tests := []struct {
		name string
		mod  Module
	}{
		{"empty id", bareModule{}},
		{"not namespaced", &trackingModule{id: "gateway"}},
		{"nil constructor", bareModule{id: "engine.nil"}},
		{"duplicate", &trackingModule{id: "engine.anthropic"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("RegisterModule did not panic")
				}
			}()
			RegisterModule(tt.mod)
		})
	}
}

func TestAppContext_LoadModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	provisioned := false
	validated := false

	RegisterModule(&trackingModule{
		id:          "test.loadmod",
		onProvision: func() { provisioned = true },
		onValidate:  func() { validated = true },
	})

	ctx := NewAppContext(nil, "/data", "/out")
	mod, err := ctx.LoadModule("test.loadmod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod == nil {
		t.Fatal("expected non-nil module")
	}
	if !provisioned {
		t.Error("expected Provision to be called")
	}
	if !validated {
		t.Error("expected Validate to be called")
	}
}

func TestAppContext_LoadModule_Errors(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&trackingModule{id: "test.provfail", provisionErr: errors.New("provision boom")})
	RegisterModule(&trackingModule{id: "test.valfail", validateErr: errors.New("validate boom")})

	ctx := NewAppContext(nil, "/data", "/out")
	if _, err := ctx.LoadModule("does.not.exist"); err == nil {
		t.Error("expected error for unknown module")
	}

	tests := []struct {
		id    string
		stage string
	}{
		{"test.provfail", StageProvision},
		{"test.valfail", StageValidate},
	}
	for _, tt := range tests {
		_, err := ctx.LoadModule(tt.id)
		var le *LoadError
		if !errors.As(err, &le) {
			t.Fatalf("LoadModule(%q) = %v, want *LoadError", tt.id, err)
		}
		if le.ID != tt.id || le.Stage != tt.stage {
			t.Errorf("LoadModule(%q): stage %q, want %q", tt.id, le.Stage, tt.stage)
		}
	}
}

func TestAppContext_LoadModule_ConfigureError(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&configurableMod{id: "test.badcfg", receivedKey: new(string)})
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("- not a mapping"), &node); err != nil {
		t.Fatal(err)
	}
	ctx := NewAppContext(nil, "", "").WithModuleConfigs(map[string]yaml.Node{"test.badcfg": *node.Content[0]})

	_, err := ctx.LoadModule("test.badcfg")
	var le *LoadError
	if !errors.As(err, &le) || le.Stage != StageConfigure {
		t.Fatalf("got %v, want configure LoadError", err)
	}
}

func TestApp_CloseJoinsStopErrors(t *testing.T) {
	t.Parallel()

	var order []string
	app := NewApp(NewAppContext(nil, "", ""))
	app.AppendModule(&lifecycleMod{id: "a.one", order: &order})
	app.AppendModule(&lifecycleMod{id: "a.two", order: &order, stopErr: errors.New("flush failed")})

	err := app.Close()
	if err == nil || !strings.Contains(err.Error(), "a.two") {
		t.Fatalf("Close() = %v, want error naming a.two", err)
	}
	if len(order) != 2 || order[0] != "stop a.two" || order[1] != "stop a.one" {
		t.Errorf("order = %v", order)
	}
	if len(app.Modules()) != 0 {
		t.Error("Close must forget the modules")
	}
}

func TestAppContext_LoadModule_WithConfig(t *testing.T) {
	t.Cleanup(resetRegistry)

	configured := false
	receivedKey := ""
	RegisterModule(&configurableMod{
		id:          "test.cfgmod",
		configured:  &configured,
		receivedKey: &receivedKey,
	})

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("key: hello"), &node); err != nil {
		t.Fatal(err)
	}

	ctx := NewAppContext(nil, "/data", "/out").WithModuleConfigs(map[string]yaml.Node{
		"test.cfgmod": *node.Content[0],
	})

	if _, err := ctx.LoadModule("test.cfgmod"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configured {
		t.Error("expected Configure to be called")
	}
	if receivedKey != "hello" {
		t.Errorf("receivedKey = %q, want %q", receivedKey, "hello")
	}
}

func TestAppContext_LoadModule_NoConfig(t *testing.T) {
	t.Cleanup(resetRegistry)

	configured := false
	RegisterModule(&configurableMod{
		id:         "test.noconfig",
		configured: &configured,
	})

	ctx := NewAppContext(nil, "/data", "/out")
	if _, err := ctx.LoadModule("test.noconfig"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if configured {
		t.Error("Configure should not be called when no config is provided")
	}
}

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()

	var order []string
	app := NewApp(NewAppContext(nil, "", ""))
	app.AppendModule(&lifecycleMod{id: "a", order: &order})
	app.AppendModule(&lifecycleMod{id: "b", order: &order})

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{"start a", "start b", "stop b", "stop a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	t.Parallel()

	var order []string
	app := NewApp(NewAppContext(nil, "", ""))
	app.AppendModule(&lifecycleMod{id: "a", order: &order})
	app.AppendModule(&lifecycleMod{id: "b", order: &order, startErr: errors.New("boom")})

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if len(order) != 2 || order[1] != "stop a" {
		t.Errorf("order = %v, want [start a, stop a]", order)
	}
}

// trackingModule is a test helper that tracks lifecycle calls.
type trackingModule struct {
	id           ModuleID
	onProvision  func()
	onValidate   func()
	provisionErr error
	validateErr  error
}

func (m *trackingModule) ModuleInfo() ModuleInfo {
	id := m.id
	return ModuleInfo{
		ID: id,
		New: func() Module {
			return &trackingModule{
				id:           id,
				onProvision:  m.onProvision,
				onValidate:   m.onValidate,
				provisionErr: m.provisionErr,
				validateErr:  m.validateErr,
			}
		},
	}
}

func (m *trackingModule) Provision(_ *AppContext) error {
	if m.onProvision != nil {
		m.onProvision()
	}
	return m.provisionErr
}

func (m *trackingModule) Validate() error {
	if m.onValidate != nil {
		m.onValidate()
	}
	return m.validateErr
}

// configurableMod is a test module that implements Configurable.
type configurableMod struct {
	id          ModuleID
	configured  *bool
	receivedKey *string
}

func (m *configurableMod) ModuleInfo() ModuleInfo {
	id := m.id
	return ModuleInfo{
		ID: id,
		New: func() Module {
			return &configurableMod{id: id, configured: m.configured, receivedKey: m.receivedKey}
		},
	}
}

func (m *configurableMod) Configure(node *yaml.Node) error {
	if m.configured != nil {
		*m.configured = true
	}
	if m.receivedKey != nil {
		var parsed struct {
			Key string `yaml:"key"`
		}
		if err := node.Decode(&parsed); err != nil {
			return err
		}
		*m.receivedKey = parsed.Key
	}
	return nil
}

type lifecycleMod struct {
	id       ModuleID
	order    *[]string
	startErr error
	stopErr  error
}

func (m *lifecycleMod) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *lifecycleMod) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	*m.order = append(*m.order, "start "+string(m.id))
	return nil
}

func (m *lifecycleMod) Stop(_ context.Context) error {
	*m.order = append(*m.order, "stop "+string(m.id))
	return m.stopErr
}

// bareModule reports an ID without a constructor.
type bareModule struct{ id ModuleID }

func (m bareModule) ModuleInfo() ModuleInfo { return ModuleInfo{ID: m.id} }
