package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/flemzord/surveil/internal/agent"
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
)

func testMapper() *Mapper {
	n := 0
	m := NewMapper("task-1", "insider_trading")
	m.Now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	m.NewID = func() string {
		n++
		return "ev-" + string(rune('a'+n-1))
	}
	return m
}

func TestMapper_Map(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      agent.Event
		category Category
		message  string
		final    bool
	}{
		{"analysis started", agent.AnalysisStarted{AlertID: "ALT-1", Category: alert.InsiderTrading}, CategoryAnalysisStarted, "Analyzing alert ALT-1", false},
		{"node started", agent.NodeStarted{Node: agent.NodeDeciding, Iteration: 1}, CategoryNodeStarted, "Entering deciding", false},
		{"node completed", agent.NodeCompleted{Node: agent.NodeExecuting, Iteration: 1}, CategoryNodeCompleted, "Finished executing", false},
		{"tool started", agent.ToolStarted{Tool: "market_news", CallID: "c1"}, CategoryToolStarted, "Starting market_news...", false},
		{"tool completed", agent.ToolCompleted{Tool: "market_news", CallID: "c1", Preview: "2 headlines"}, CategoryToolCompleted, "Completed market_news", false},
		{"thinking", agent.Thinking{Text: "Checking history"}, CategoryThinking, "Reasoning...", false},
		{"decision", agent.DecisionReady{Decision: decision.Decision{AlertID: "ALT-1", Determination: decision.Close}}, CategoryAnalysisComplete, "Analysis complete: CLOSE", true},
		{"failed", agent.Failed{Stage: "executing", Err: errors.New("relationships.csv missing")}, CategoryError, "Error in executing: relationships.csv missing", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev := testMapper().Map(tt.raw)
			if ev == nil {
				t.Fatal("expected an event")
			}
			if ev.Category != tt.category {
				t.Errorf("Category = %s, want %s", ev.Category, tt.category)
			}
			if ev.Message() != tt.message {
				t.Errorf("message = %q, want %q", ev.Message(), tt.message)
			}
			if ev.Final != tt.final {
				t.Errorf("Final = %v, want %v", ev.Final, tt.final)
			}
			if ev.ID == "" || ev.TaskID != "task-1" || ev.Source != "insider_trading" || ev.Timestamp.IsZero() {
				t.Errorf("event not stamped: %+v", ev)
			}
		})
	}
}

func TestMapper_SuppressesTokens(t *testing.T) {
	t.Parallel()

	if ev := testMapper().Map(agent.TokenGenerated{Text: "tok"}); ev != nil {
		t.Errorf("token events must be suppressed, got %+v", ev)
	}
}

func TestMapper_FreshIdentity(t *testing.T) {
	t.Parallel()

	m := NewMapper("task-1", "wash_trade")
	a := m.Map(agent.NodeStarted{Node: agent.NodeDeciding})
	b := m.Map(agent.NodeStarted{Node: agent.NodeDeciding})
	if a.ID == b.ID {
		t.Error("every mapped event needs a fresh id")
	}
	if k := m.KeepAlive(); k.Final || k.Category != CategoryKeepAlive {
		t.Errorf("unexpected keep-alive: %+v", k)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tmpl    string
		payload map[string]any
		want    string
	}{
		{"Starting {tool}...", map[string]any{"tool": "market_data"}, "Starting market_data..."},
		{"Error in {stage}: {error}", map[string]any{"stage": "deciding"}, "Error in deciding: "},
		{"no placeholders", nil, "no placeholders"},
		{"unterminated {tool", map[string]any{"tool": "x"}, "unterminated {tool"},
	}
	for _, tt := range tests {
		if got := render(tt.tmpl, tt.payload); got != tt.want {
			t.Errorf("render(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}
