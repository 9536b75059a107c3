package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/surveil/internal/agent"
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/stream"
	"github.com/flemzord/surveil/internal/tool"
)

const (
	// DefaultMaxConcurrent bounds concurrently running analyses.
	DefaultMaxConcurrent = 4

	// RunnerService is the core service name of the process-wide Runner.
	RunnerService = "task.runner"
)

// ErrNoLoop indicates no loop is configured for the alert's category.
var ErrNoLoop = errors.New("task: no analysis loop for category")

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Manager   *Manager
	Loops     map[alert.Category]*agent.Loop
	Aggregate *tool.Aggregate
	Producer  stream.ProducerConfig
	Logger    *slog.Logger

	// MaxConcurrent bounds concurrently running analyses.
	MaxConcurrent int
}

// Runner executes analyses out of band and records their progress.
type Runner struct {
	manager   *Manager
	loops     map[alert.Category]*agent.Loop
	aggregate *tool.Aggregate
	producer  stream.ProducerConfig
	logger    *slog.Logger
	sem       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner returns a runner. Analyses submitted to it run under a context
// owned by the runner and are stopped by Close.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Aggregate == nil {
		cfg.Aggregate = tool.NewAggregate()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		manager:   cfg.Manager,
		loops:     cfg.Loops,
		aggregate: cfg.Aggregate,
		producer:  cfg.Producer,
		logger:    cfg.Logger,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Manager returns the task table the runner writes to.
func (r *Runner) Manager() *Manager { return r.manager }

// Aggregate returns the process-wide tool statistics.
func (r *Runner) Aggregate() *tool.Aggregate { return r.aggregate }

// Supports reports whether a loop is configured for c.
func (r *Runner) Supports(c alert.Category) bool {
	_, ok := r.loops[c]
	return ok
}

// Submit creates a task for a and starts analysing it in the background.
// It returns as soon as the task is registered.
func (r *Runner) Submit(a *alert.Alert, c alert.Category) (Record, error) {
	loop, ok := r.loops[c]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNoLoop, c)
	}
	rec := r.manager.Create(a.ID, c)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(r.ctx, rec.ID, a, loop)
	}()
	return rec, nil
}

// Run analyses a synchronously and returns the final record.
func (r *Runner) Run(ctx context.Context, a *alert.Alert, c alert.Category) (Record, error) {
	loop, ok := r.loops[c]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNoLoop, c)
	}
	rec := r.manager.Create(a.ID, c)
	r.execute(ctx, rec.ID, a, loop)
	return r.manager.Get(rec.ID)
}

func (r *Runner) execute(ctx context.Context, taskID string, a *alert.Alert, loop *agent.Loop) {
	logger := r.logger.With("task_id", taskID, "alert_id", a.ID)

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		r.abort(taskID, ctx.Err())
		return
	}

	category := loop.Strategy().Category()
	stats := &tool.Stats{}
	var (
		result agent.Result
		runErr error
	)
	finished := make(chan struct{})

	producer := stream.NewProducer(stream.NewMapper(taskID, string(category)), r.producer)
	events := producer.Start(ctx, func(sinks agent.Sinks) {
		defer close(finished)
		result, runErr = loop.Run(ctx, a, stats, sinks)
	})

	for ev := range events {
		if err := r.manager.Append(taskID, ev); err != nil {
			logger.Warn("dropping event", "category", ev.Category, "error", err)
		}
	}
	<-finished
	r.aggregate.Merge(stats)

	if rec, err := r.manager.Get(taskID); err == nil && !rec.Done() {
		// The consumer stopped before the terminal event reached the table.
		r.abort(taskID, errors.Join(ctx.Err(), runErr))
	}
	if runErr != nil {
		logger.Warn("task failed", "error", runErr, "stop_reason", result.StopReason)
		return
	}
	logger.Info("task complete",
		"determination", result.Decision.Determination,
		"iterations", result.Iterations,
		"tool_calls", result.ToolCalls,
	)
}

// abort records a terminal error event for a task that could not run to
// completion.
func (r *Runner) abort(taskID string, cause error) {
	if cause == nil {
		cause = errors.New("analysis interrupted")
	}
	rec, err := r.manager.Get(taskID)
	if err != nil {
		return
	}
	ev := stream.NewMapper(taskID, string(rec.Category)).Map(agent.Failed{Stage: "runner", Err: cause})
	_ = r.manager.Append(taskID, *ev)
}

// Wait blocks until every submitted task has finished.
func (r *Runner) Wait() { r.wg.Wait() }

// Close stops accepting work, cancels running analyses and waits for them.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
