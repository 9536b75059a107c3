package playbook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/surveil/internal/agent"
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/engine/enginetest"
	"github.com/flemzord/surveil/internal/evidence"
	"github.com/flemzord/surveil/internal/tool"
)

func testAlert() *alert.Alert {
	return &alert.Alert{
		ID:       "ALT-1001",
		Type:     "Insider Trading",
		RuleCode: "SMARTS-IT-001",
		Trader:   alert.Trader{ID: "TR-042", Name: "J. Doe"},
		Account:  alert.Account{ID: "ACC-7781"},
		Activity: alert.Activity{Symbol: "ACME", Side: "BUY", Quantity: 50000, TradeDate: "2024-03-14"},
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, c := range alert.Categories() {
		p, err := New(c, Deps{})
		if err != nil {
			t.Fatalf("New(%s): %v", c, err)
		}
		if p.Category() != c {
			t.Errorf("Category() = %s, want %s", p.Category(), c)
		}
	}
	if _, err := New(alert.Unsupported, Deps{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestAll(t *testing.T) {
	t.Parallel()

	all := All(Deps{})
	if len(all) != 2 || all[alert.InsiderTrading] == nil || all[alert.WashTrade] == nil {
		t.Fatalf("All() = %v", all)
	}
	want := map[alert.Category][]string{
		alert.InsiderTrading: {"market_data", "market_news", "relationship_graph", "trader_history"},
		alert.WashTrade:      {"market_data", "relationship_graph", "trader_history"},
	}
	for c, p := range all {
		if diff := cmp.Diff(want[c], p.Tools().Names()); diff != "" {
			t.Errorf("%s tools mismatch (-want +got):\n%s", c, diff)
		}
	}
	if all[alert.InsiderTrading].SystemPrompt() == all[alert.WashTrade].SystemPrompt() {
		t.Error("categories must brief the engine differently")
	}
}

func TestFraming(t *testing.T) {
	t.Parallel()

	a := testAlert()
	a.SourcePath = "alerts/ALT-1001.xml"
	got := InsiderTrading(Deps{}).Framing(a)
	for _, want := range []string{"insider trading alert", "ALT-1001", "TR-042", "alerts/ALT-1001.xml", "- trader_history:", "- relationship_graph:"} {
		if !strings.Contains(got, want) {
			t.Errorf("framing missing %q:\n%s", want, got)
		}
	}
}

func TestDecisionPrompt(t *testing.T) {
	t.Parallel()

	got := WashTrade(Deps{}).DecisionPrompt(testAlert())
	for _, want := range []string{"ALT-1001", "NEEDS_HUMAN_REVIEW", "beneficial ownership", decision.Schema} {
		if !strings.Contains(got, want) {
			t.Errorf("decision prompt missing %q", want)
		}
	}
}

type countingObserver struct {
	mu    sync.Mutex
	names []string
}

func (o *countingObserver) ObserveTool(name string, _ time.Duration, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names = append(o.names, name)
}

func TestPlaybook_DrivesLoopEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csv := "trade_date,trader_id,account_id,symbol,side,quantity,price\n" +
		"2024-03-01,TR-042,ACC-7781,ACME,BUY,800,11.90\n" +
		"2024-03-14,TR-042,ACC-7781,ACME,BUY,50000,12.40\n"
	for _, f := range evidence.Files() {
		body := "a,b\n"
		if f == evidence.TraderHistoryFile {
			body = csv
		}
		if err := os.WriteFile(filepath.Join(dir, f), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	var (
		mu        sync.Mutex
		deciding  int
		interpret []string
	)
	e := &enginetest.MockEngine{
		CompleteFunc: func(_ context.Context, req engine.Request) (engine.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			if len(req.Tools) == 0 && len(req.Messages) == 2 {
				interpret = append(interpret, req.Messages[1].Content)
				return engine.Response{Content: "Position is 60x the prior ACME purchase."}, nil
			}
			deciding++
			switch deciding {
			case 1:
				return engine.Response{ToolCalls: []engine.ToolCall{{
					ID: "c1", Name: "trader_history",
					Arguments: []byte(`{"trader_id":"TR-042","trade_date":"2024-03-14","symbol":"ACME"}`),
				}}}, nil
			case 2:
				return engine.Response{Content: "Enough evidence gathered."}, nil
			default:
				return engine.Response{Content: `{"determination":"ESCALATE","genuine_alert_confidence":80,` +
					`"false_positive_confidence":15,"key_findings":["Position 60x baseline"],"favorable_indicators":[],` +
					`"mitigating_indicators":[],"reasoning_narrative":"A position sixty times the trader's recent baseline ahead of news.",` +
					`"recommended_action":"Escalate."}`}, nil
			}
		},
	}
	obs := &countingObserver{}
	p := InsiderTrading(Deps{Engine: e, DataDir: dir, Observer: obs})
	var stats tool.Stats

	res, err := agent.NewLoop(e, p, agent.LoopConfig{}, agent.Options{}).Run(context.Background(), testAlert(), &stats, agent.Sinks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Decision.Determination != decision.Escalate || res.Decision.Category != alert.InsiderTrading {
		t.Errorf("unexpected decision: %+v", res.Decision)
	}
	if len(interpret) != 1 || !strings.Contains(interpret[0], "50000") || !strings.Contains(interpret[0], "Category: insider trading") {
		t.Errorf("interpretation prompt = %q", interpret)
	}
	if len(obs.names) != 1 || obs.names[0] != "trader_history" {
		t.Errorf("observer saw %v", obs.names)
	}
	if stats.Total() != 1 {
		t.Errorf("stats total = %d, want 1", stats.Total())
	}
}

func TestPlaybook_MissingSourceFailsFast(t *testing.T) {
	t.Parallel()

	e := enginetest.Script(engine.Response{Content: "unused"})
	p := WashTrade(Deps{Engine: e, DataDir: t.TempDir()})

	_, err := agent.NewLoop(e, p, agent.LoopConfig{}, agent.Options{}).Run(context.Background(), testAlert(), nil, agent.Sinks{})
	if !errors.Is(err, evidence.ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
	if e.Calls() != 0 {
		t.Errorf("engine called %d times", e.Calls())
	}
}

func TestPreflight_OnlyBoundSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, f := range evidence.Files() {
		if f == evidence.MarketNewsFile {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, f), []byte("symbol\nACME\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if err := WashTrade(Deps{DataDir: dir}).Tools().Preflight(); err != nil {
		t.Errorf("wash trade preflight without market news: %v", err)
	}
	if err := InsiderTrading(Deps{DataDir: dir}).Tools().Preflight(); !errors.Is(err, evidence.ErrSourceMissing) {
		t.Errorf("insider preflight: expected ErrSourceMissing, got %v", err)
	}
}
