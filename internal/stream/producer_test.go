package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/surveil/internal/agent"
	"github.com/flemzord/surveil/internal/decision"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-timeout:
			t.Fatal("producer did not close its channel")
			return nil
		}
	}
}

func labels(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e.Category == CategoryKeepAlive {
			continue
		}
		out = append(out, e.Message())
	}
	return out
}

func TestProducer_ToolEventsPrecedeLoopTransition(t *testing.T) {
	t.Parallel()

	want := []string{
		"Analyzing alert ALT-1",
		"Entering executing",
		"Starting market_news...", "Completed market_news",
		"Starting market_data...", "Completed market_data",
		"Finished executing",
		"Analysis complete: ESCALATE",
	}
	// Repeat to exercise select's random choice between ready channels.
	for range 50 {
		p := NewProducer(NewMapper("task-1", "insider_trading"), ProducerConfig{})
		ch := p.Start(context.Background(), func(s agent.Sinks) {
			s.Loop(agent.AnalysisStarted{AlertID: "ALT-1"})
			s.Loop(agent.NodeStarted{Node: agent.NodeExecuting, Iteration: 1})
			for _, name := range []string{"market_news", "market_data"} {
				s.Tool(agent.ToolStarted{Tool: name})
				s.Tool(agent.ToolCompleted{Tool: name})
			}
			s.Loop(agent.NodeCompleted{Node: agent.NodeExecuting, Iteration: 1})
			s.Loop(agent.DecisionReady{Decision: decision.Decision{Determination: decision.Escalate}})
		})
		if diff := cmp.Diff(want, labels(collect(t, ch))); diff != "" {
			t.Fatalf("sequence mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestProducer_NothingAfterTerminal(t *testing.T) {
	t.Parallel()

	returned := make(chan struct{})
	p := NewProducer(NewMapper("task-1", "wash_trade"), ProducerConfig{})
	ch := p.Start(context.Background(), func(s agent.Sinks) {
		defer close(returned)
		s.Loop(agent.Failed{Stage: "deciding", Err: errors.New("engine down")})
		s.Loop(agent.NodeStarted{Node: agent.NodeDeciding})
		s.Tool(agent.ToolStarted{Tool: "market_data"})
	})

	events := collect(t, ch)
	if len(events) != 1 || !events[0].Final || events[0].Category != CategoryError {
		t.Fatalf("events = %+v, want a single final error", events)
	}
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on a sink after the terminal event")
	}
}

func TestProducer_KeepAlive(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	p := NewProducer(NewMapper("task-1", "insider_trading"), ProducerConfig{KeepAlive: 10 * time.Millisecond})
	ch := p.Start(context.Background(), func(s agent.Sinks) {
		s.Loop(agent.AnalysisStarted{AlertID: "ALT-1"})
		<-release
		s.Loop(agent.DecisionReady{Decision: decision.Decision{Determination: decision.Close}})
	})

	first := <-ch
	if first.Category != CategoryAnalysisStarted {
		t.Fatalf("first event = %s", first.Category)
	}
	second := <-ch
	if second.Category != CategoryKeepAlive || second.Final {
		t.Fatalf("expected keep-alive during idle period, got %+v", second)
	}
	close(release)

	rest := collect(t, ch)
	last := rest[len(rest)-1]
	if !last.Final || last.Category != CategoryAnalysisComplete {
		t.Errorf("last event = %+v", last)
	}
}

func TestProducer_MissingTerminalIsReported(t *testing.T) {
	t.Parallel()

	p := NewProducer(NewMapper("task-1", "insider_trading"), ProducerConfig{})
	ch := p.Start(context.Background(), func(s agent.Sinks) {
		s.Loop(agent.AnalysisStarted{AlertID: "ALT-1"})
		s.Tool(agent.ToolStarted{Tool: "market_data"})
	})

	events := collect(t, ch)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[1].Category != CategoryToolStarted {
		t.Errorf("pending tool event must be flushed first, got %s", events[1].Category)
	}
	if last := events[2]; !last.Final || last.Category != CategoryError {
		t.Errorf("last event = %+v", last)
	}
}

func TestProducer_ContextCancelStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	p := NewProducer(NewMapper("task-1", "insider_trading"), ProducerConfig{})
	ch := p.Start(ctx, func(s agent.Sinks) {
		s.Loop(agent.AnalysisStarted{AlertID: "ALT-1"})
		<-block
	})
	<-ch
	cancel()
	collect(t, ch)
}
