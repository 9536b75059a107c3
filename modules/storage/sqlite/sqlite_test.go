package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/decision"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()

	dir := t.TempDir()
	m := &Module{config: Config{Path: filepath.Join(dir, "test.db")}}
	ctx := core.NewAppContext(slog.New(slog.DiscardHandler), dir, dir)

	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func sampleDecision(id string, c alert.Category, det decision.Determination) decision.Decision {
	return decision.Decision{
		AlertID:                 id,
		Category:                c,
		Determination:           det,
		GenuineConfidence:       70,
		FalsePositiveConfidence: 20,
		KeyFindings:             []string{"Trader bought 40,000 shares two days before the announcement"},
		FavorableIndicators:     []string{},
		MitigatingIndicators:    []string{"Position size in line with history"},
		Reasoning:               "The timing relative to the earnings release and the trader's access to deal information warrant escalation.",
		RecommendedAction:       "Escalate to compliance.",
		DecidedAt:               time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestModule_RegistersStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := core.NewAppContext(slog.New(slog.DiscardHandler), dir, dir)
	m := &Module{}
	if err := m.Provision(ctx); err != nil {
		t.Fatalf("provision: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	if m.config.Path != filepath.Join(dir, defaultDBFile) {
		t.Errorf("Path = %q, want default under data dir", m.config.Path)
	}
	s, err := core.ServiceAs[decision.Store](ctx, decision.StoreService)
	if err != nil {
		t.Fatalf("store service: %v", err)
	}
	if s != decision.Store(m.Store()) {
		t.Error("registered service is not the module's store")
	}
}

func TestModule_Configure(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("path: /tmp/x.db\nwal: false\n"), &node); err != nil {
		t.Fatal(err)
	}
	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if m.config.Path != "/tmp/x.db" || m.config.walEnabled() || m.config.BusyTimeout != defaultBusyTimeout {
		t.Errorf("config = %+v", m.config)
	}

	bad := Config{BusyTimeout: -1}
	if err := bad.validate(); err == nil {
		t.Error("expected error for negative busy_timeout")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	s := newTestModule(t).Store()
	ctx := context.Background()

	if _, err := s.Load(ctx, "ALT-1"); !errors.Is(err, decision.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}

	want := sampleDecision("ALT-1", alert.InsiderTrading, decision.Escalate)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "ALT-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	t.Parallel()

	s := newTestModule(t).Store()
	ctx := context.Background()

	if err := s.Save(ctx, sampleDecision("ALT-2", alert.WashTrade, decision.Escalate)); err != nil {
		t.Fatal(err)
	}
	replacement := decision.Fallback("ALT-2", alert.WashTrade, errors.New("engine unavailable"), time.Now())
	if err := s.Save(ctx, replacement); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "ALT-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Determination != decision.NeedsHumanReview || !got.Fallback {
		t.Errorf("got %s (fallback %v), want replaced fallback decision", got.Determination, got.Fallback)
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n := summary[string(alert.WashTrade)][decision.NeedsHumanReview]; n != 1 {
		t.Errorf("summary = %v, want one NEEDS_HUMAN_REVIEW wash trade", summary)
	}
}

func TestStore_Summary(t *testing.T) {
	t.Parallel()

	s := newTestModule(t).Store()
	ctx := context.Background()

	for i, d := range []decision.Decision{
		sampleDecision("A1", alert.InsiderTrading, decision.Escalate),
		sampleDecision("A2", alert.InsiderTrading, decision.Escalate),
		sampleDecision("A3", alert.InsiderTrading, decision.Close),
		sampleDecision("B1", alert.WashTrade, decision.Close),
	} {
		if err := s.Save(ctx, d); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := s.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]map[decision.Determination]int{
		"insider_trading": {decision.Escalate: 2, decision.Close: 1},
		"wash_trade":      {decision.Close: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	s := newTestModule(t).Store()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Save(ctx, sampleDecision(fmt.Sprintf("C-%d", i), alert.WashTrade, decision.Close)); err != nil {
				t.Errorf("concurrent save: %v", err)
			}
		}()
	}
	wg.Wait()

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n := summary["wash_trade"][decision.Close]; n != 10 {
		t.Errorf("stored %d decisions, want 10", n)
	}
}

func TestWALMode(t *testing.T) {
	t.Parallel()

	m := newTestModule(t)
	var mode string
	if err := m.store.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("pragma journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}
}

func TestMigrationIdempotent(t *testing.T) {
	t.Parallel()

	m := newTestModule(t)
	if err := migrate(context.Background(), m.store.db); err != nil {
		t.Fatalf("second migration: %v", err)
	}
	if err := m.store.Save(context.Background(), sampleDecision("M-1", alert.WashTrade, decision.Close)); err != nil {
		t.Fatalf("save after re-migration: %v", err)
	}
}

func TestOpenStore_CreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "decisions.db")
	s, err := OpenStore(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Save(context.Background(), sampleDecision("O-1", alert.InsiderTrading, decision.Close)); err != nil {
		t.Fatal(err)
	}
}
