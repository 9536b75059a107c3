package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/tool"
)

// Sentinel errors for loop termination.
var (
	ErrTokenBudgetExceeded  = errors.New("agent: token budget exceeded")
	ErrMaxIterationsReached = errors.New("agent: max iterations reached")
	ErrLoopDetected         = errors.New("agent: loop detected")
)

// Failure stages reported in Failed events.
const (
	StagePreflight  = "preflight"
	StageDeciding   = "deciding"
	StageExecuting  = "executing"
	StageFinalizing = "finalizing"
	StagePublish    = "publish"
)

var tracer = otel.Tracer("surveil/agent")

// Options carries the optional collaborators of a Loop.
type Options struct {
	Publisher Publisher
	Logger    *slog.Logger

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// Loop is the generic Deciding / Executing / Finalizing state machine.
// A Loop is stateless between runs and may serve concurrent tasks; each run
// is single-threaded.
type Loop struct {
	engine    engine.Engine
	strategy  Strategy
	config    LoopConfig
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewLoop creates a Loop driving e with the given strategy.
func NewLoop(e engine.Engine, s Strategy, cfg LoopConfig, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Loop{
		engine:    e,
		strategy:  s,
		config:    cfg.withDefaults(),
		publisher: opts.Publisher,
		logger:    logger.With("category", string(s.Category())),
		now:       now,
	}
}

// Strategy returns the strategy the loop runs.
func (l *Loop) Strategy() Strategy { return l.strategy }

// run is the mutable state of one analysis.
type run struct {
	*Loop
	alert    *alert.Alert
	sinks    Sinks
	exec     *executor
	guard    *repeatGuard
	budget   *tokenBudget
	messages []engine.Message
	stage    string
	result   Result
}

// Run analyses a and returns its decision. Tool call statistics are recorded
// into stats (which may be nil). Every run emits AnalysisStarted first and
// exactly one terminal event (DecisionReady or Failed) last.
//
// A context.WithTimeout is applied using the configured Timeout. If the
// caller's context already carries a shorter deadline, the shorter one
// takes effect.
func (l *Loop) Run(ctx context.Context, a *alert.Alert, stats *tool.Stats, sinks Sinks) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	category := l.strategy.Category()
	ctx, span := tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("alert.id", a.ID),
		attribute.String("alert.category", string(category)),
	))
	defer span.End()

	r := &run{
		Loop:     l,
		alert:    a,
		sinks:    sinks,
		exec:     &executor{registry: l.strategy.Tools(), stats: stats, sinks: sinks},
		guard:    newRepeatGuard(l.config.LoopThreshold),
		budget:   &tokenBudget{limit: l.config.TokenBudget},
	}

	sinks.loop(AnalysisStarted{AlertID: a.ID, Category: category})
	err := r.investigate(ctx)
	r.result.Usage = r.budget.used
	span.SetAttributes(
		attribute.Int("agent.iterations", r.result.Iterations),
		attribute.Int("agent.tool_calls", r.result.ToolCalls),
		attribute.String("agent.stop_reason", string(r.result.StopReason)),
	)

	if err != nil {
		if r.result.StopReason == "" {
			r.result.StopReason = StopReasonError
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error("analysis failed", "alert_id", a.ID, "stage", r.stage, "error", err)
		sinks.loop(Failed{Stage: r.stage, Err: err})
		return r.result, err
	}

	l.logger.Info("analysis complete",
		"alert_id", a.ID,
		"determination", r.result.Decision.Determination,
		"iterations", r.result.Iterations,
		"tool_calls", r.result.ToolCalls,
	)
	sinks.loop(DecisionReady{Decision: r.result.Decision})
	return r.result, nil
}

func (r *run) investigate(ctx context.Context) error {
	r.stage = StagePreflight
	if err := r.strategy.Tools().Preflight(); err != nil {
		return fmt.Errorf("agent: preflight: %w", err)
	}

	r.messages = []engine.Message{
		{Role: engine.RoleSystem, Content: r.strategy.SystemPrompt()},
		{Role: engine.RoleUser, Content: r.strategy.Framing(r.alert)},
	}
	tools := toolDefinitions(r.strategy.Tools())

	for i := 1; i <= r.config.MaxIterations; i++ {
		r.result.Iterations = i
		r.stage = StageDeciding
		if err := r.checkBounds(ctx); err != nil {
			return err
		}

		r.sinks.loop(NodeStarted{Node: NodeDeciding, Iteration: i})
		resp, err := r.complete(ctx, tools)
		if err != nil {
			r.stopOnContext(err)
			return fmt.Errorf("agent: deciding: %w", err)
		}
		if strings.TrimSpace(resp.Content) != "" {
			r.sinks.loop(Thinking{Text: resp.Content})
		}
		r.sinks.loop(NodeCompleted{Node: NodeDeciding, Iteration: i})

		if r.budget.spent() {
			r.result.StopReason = StopReasonTokenBudget
			return ErrTokenBudgetExceeded
		}

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Content) != "" {
				r.messages = append(r.messages, engine.Message{Role: engine.RoleAssistant, Content: resp.Content})
			}
			return r.finalize(ctx)
		}

		// Check for loops before appending the assistant message so the
		// history never holds tool calls without results.
		if name, stuck := r.guard.observe(resp.ToolCalls); stuck {
			r.result.StopReason = StopReasonLoopDetected
			return fmt.Errorf("%w: %s", ErrLoopDetected, name)
		}

		r.messages = append(r.messages, engine.Message{
			Role:      engine.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		r.stage = StageExecuting
		r.sinks.loop(NodeStarted{Node: NodeExecuting, Iteration: i})
		records, err := r.exec.run(ctx, resp.ToolCalls)
		r.result.ToolCalls += len(records)
		if err != nil {
			r.stopOnContext(err)
			return err
		}
		r.messages = appendToolResults(r.messages, records)
		r.sinks.loop(NodeCompleted{Node: NodeExecuting, Iteration: i})
	}

	r.result.StopReason = StopReasonMaxIterations
	return fmt.Errorf("%w (%d)", ErrMaxIterationsReached, r.config.MaxIterations)
}

// finalize asks for the structured decision. Any failure to obtain or parse
// it is absorbed: a debug dump is written and the fallback decision is
// published instead.
func (r *run) finalize(ctx context.Context) error {
	r.stage = StageFinalizing
	r.sinks.loop(NodeStarted{Node: NodeFinalizing, Iteration: r.result.Iterations})

	r.messages = append(r.messages, engine.Message{Role: engine.RoleUser, Content: r.strategy.DecisionPrompt(r.alert)})
	now := r.now()
	d, err := r.decide(ctx)
	if err != nil {
		r.result.StopReason = StopReasonFallback
		r.result.DumpPath = r.dump(err, now)
		r.logger.Warn("structured decision unavailable, using fallback", "alert_id", r.alert.ID, "error", err)
		d = decision.Fallback(r.alert.ID, r.strategy.Category(), err, now)
	} else {
		r.result.StopReason = StopReasonComplete
		d.AlertID = r.alert.ID
		d.Category = r.strategy.Category()
		d.DecidedAt = now.UTC()
	}
	r.result.Decision = d
	r.sinks.loop(NodeCompleted{Node: NodeFinalizing, Iteration: r.result.Iterations})

	if r.publisher == nil {
		return nil
	}
	r.stage = StagePublish
	// Publishing runs even when the analysis deadline has passed.
	if err := r.publisher.Publish(context.WithoutCancel(ctx), r.alert, d); err != nil {
		r.result.StopReason = StopReasonError
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

func (r *run) decide(ctx context.Context) (decision.Decision, error) {
	resp, err := r.complete(ctx, nil)
	if err != nil {
		return decision.Decision{}, err
	}
	r.messages = append(r.messages, engine.Message{Role: engine.RoleAssistant, Content: resp.Content})
	return decision.Parse(resp.Content)
}

func (r *run) dump(cause error, now time.Time) string {
	if r.config.DumpDir == "" {
		return ""
	}
	path, err := writeDump(r.config.DumpDir, DebugDump{
		AlertID:   r.alert.ID,
		Category:  r.strategy.Category(),
		Reason:    cause.Error(),
		Timestamp: now.UTC(),
		Messages:  lastMessages(r.messages, r.config.DebugMessages),
	})
	if err != nil {
		r.logger.Error("writing debug dump", "alert_id", r.alert.ID, "error", err)
		return ""
	}
	return path
}

// complete performs one engine round. Streaming engines forward every text
// fragment as a TokenGenerated event.
func (r *run) complete(ctx context.Context, tools []engine.ToolDefinition) (engine.Response, error) {
	req := engine.Request{Messages: r.messages, Tools: tools}

	var (
		resp engine.Response
		err  error
	)
	if s, ok := r.engine.(engine.Streamer); ok {
		var ch <-chan engine.Chunk
		ch, err = s.Stream(ctx, req)
		if err == nil {
			resp, err = engine.Collect(ch, func(text string) {
				r.sinks.loop(TokenGenerated{Text: text})
			})
		}
	} else {
		resp, err = r.engine.Complete(ctx, req)
	}
	if err != nil {
		return engine.Response{}, err
	}
	r.budget.charge(resp.Usage)
	return resp, nil
}

func (r *run) checkBounds(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		r.stopOnContext(err)
		return fmt.Errorf("agent: %w", err)
	}
	if r.budget.spent() {
		r.result.StopReason = StopReasonTokenBudget
		return ErrTokenBudgetExceeded
	}
	return nil
}

func (r *run) stopOnContext(err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		r.result.StopReason = StopReasonTimeout
	}
}
