package file

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/decision"
)

func TestModule_DefaultDir(t *testing.T) {
	t.Parallel()

	out := t.TempDir()
	ctx := core.NewAppContext(slog.New(slog.DiscardHandler), t.TempDir(), out)
	m := &Module{}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	s, err := core.ServiceAs[decision.Store](ctx, decision.StoreService)
	if err != nil {
		t.Fatal(err)
	}
	d := decision.Decision{AlertID: "ALT/7", Category: alert.WashTrade, Determination: decision.Close}
	if err := s.Save(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "decisions", "ALT_7.json")); err != nil {
		t.Errorf("decision document missing: %v", err)
	}
}

func TestModule_ConfiguredDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "custom")
	var node yaml.Node
	if err := yaml.Unmarshal([]byte("dir: "+dir), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatal(err)
	}
	if err := m.Provision(core.NewAppContext(slog.New(slog.DiscardHandler), "", "")); err != nil {
		t.Fatal(err)
	}
	if m.store.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", m.store.Dir(), dir)
	}
}

func TestModule_ValidateRejectsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "decisions")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	m := &Module{config: Config{Dir: path}}
	if err := m.Validate(); err == nil {
		t.Error("expected error for a non-directory")
	}
}
