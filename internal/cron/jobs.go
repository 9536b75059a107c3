package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Evictor removes finished tasks older than a maximum age.
type Evictor interface {
	Evict(maxAge time.Duration) int
}

// TaskEvictionJob drops finished task records, with their event buffers,
// once they are older than MaxAge.
type TaskEvictionJob struct {
	Tasks        Evictor
	MaxAge       time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "*/5 * * * *"
}

var _ Job = (*TaskEvictionJob)(nil)

// Name implements Job.
func (j *TaskEvictionJob) Name() string { return "task_eviction" }

// Schedule implements Job.
func (j *TaskEvictionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run evicts expired tasks.
func (j *TaskEvictionJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: task eviction cancelled: %w", ctx.Err())
	}
	if n := j.Tasks.Evict(j.MaxAge); n > 0 {
		j.Logger.Info("cron: evicted tasks", "count", n, "max_age", j.MaxAge)
	}
	return nil
}

// Checker verifies a set of external resources.
type Checker interface {
	Preflight() error
}

// SourceCheckJob periodically verifies that evidence data sources exist so
// a missing file is noticed before the next analysis fails on it.
type SourceCheckJob struct {
	Sources      Checker
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

var _ Job = (*SourceCheckJob)(nil)

// Name implements Job.
func (j *SourceCheckJob) Name() string { return "source_check" }

// Schedule implements Job.
func (j *SourceCheckJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run checks the sources. A missing source is logged and reported as a job
// error.
func (j *SourceCheckJob) Run(_ context.Context) error {
	if err := j.Sources.Preflight(); err != nil {
		j.Logger.Warn("cron: evidence source unavailable", "error", err)
		return err
	}
	return nil
}
