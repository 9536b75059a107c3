package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Run is the outcome of the latest pass of a job.
type Run struct {
	At       time.Time
	Duration time.Duration
	Err      error
}

// entry is a registered job with its parsed schedule.
type entry struct {
	job      Job
	schedule cron.Schedule
	running  sync.Mutex
}

// Scheduler runs maintenance jobs. A job never overlaps itself: a tick
// that finds the previous pass still running is skipped.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	last    map[string]Run
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler returns an idle scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		entries: make(map[string]*entry),
		last:    make(map[string]Run),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterJob adds j. Its schedule is parsed here so a bad expression
// fails at wiring time rather than at Start.
func (s *Scheduler) RegisterJob(j Job) error {
	sched, err := ParseSchedule(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: job %q: invalid schedule %q: %w", j.Name(), j.Schedule(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[j.Name()]; dup {
		return fmt.Errorf("cron: duplicate job name %q", j.Name())
	}
	s.entries[j.Name()] = &entry{job: j, schedule: sched}
	s.order = append(s.order, j.Name())
	return nil
}

// Start begins ticking every registered job.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cron.New(cron.WithParser(parser))
	for _, name := range s.order {
		e := s.entries[name]
		c.Schedule(e.schedule, cron.FuncJob(func() { s.tick(e) }))
	}
	s.cron = c
	c.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// Trigger runs the named job now, under the same no-overlap rule as
// scheduled ticks. It reports whether the job ran.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.tick(e)
}

// Last returns the outcome of the latest completed pass of each job that
// ran at least once.
func (s *Scheduler) Last() map[string]Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Run, len(s.last))
	for k, v := range s.last {
		out[k] = v
	}
	return out
}

func (s *Scheduler) tick(e *entry) bool {
	name := e.job.Name()
	if !e.running.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return false
	}
	defer e.running.Unlock()

	start := time.Now()
	err := e.job.Run(s.ctx)
	run := Run{At: start, Duration: time.Since(start), Err: err}
	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", name, "duration", run.Duration)
	}

	s.mu.Lock()
	s.last[name] = run
	s.mu.Unlock()
	return true
}

// Stop cancels running passes and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.cancel()

	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
