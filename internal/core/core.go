package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const shutdownTimeout = 30 * time.Second

// App drives the lifecycle of loaded modules and of the components the
// runtime appends after loading (task runner, scheduler).
type App struct {
	ctx    *AppContext
	units  []unit
	logger *slog.Logger
}

type unit struct {
	mod     Module
	started bool
}

func (u *unit) id() string { return string(u.mod.ModuleInfo().ID) }

// NewApp returns an App with no modules.
func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

// Context returns the root AppContext.
func (a *App) Context() *AppContext { return a.ctx }

// LoadModules loads ids in order. On failure every module loaded so far is
// released.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Close()
			return fmt.Errorf("loading modules: %w", err)
		}
		a.AppendModule(mod)
		a.logger.Debug("module loaded", "module", id)
	}
	return nil
}

// AppendModule adds a component started and stopped with the modules.
func (a *App) AppendModule(mod Module) {
	a.units = append(a.units, unit{mod: mod})
}

// Modules returns the modules in load order.
func (a *App) Modules() []Module {
	out := make([]Module, len(a.units))
	for i := range a.units {
		out[i] = a.units[i].mod
	}
	return out
}

// Start starts every Starter in order. When one fails, those already
// started are stopped in reverse order.
func (a *App) Start() error {
	for i := range a.units {
		u := &a.units[i]
		s, ok := u.mod.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(); err != nil {
			a.logger.Error("module start failed", "module", u.id(), "error", err)
			_ = a.stop(i-1, false)
			return fmt.Errorf("starting module %s: %w", u.id(), err)
		}
		u.started = true
		a.logger.Info("module started", "module", u.id())
	}
	return nil
}

// Stop stops the started modules in reverse order and returns their
// joined errors.
func (a *App) Stop() error {
	return a.stop(len(a.units)-1, false)
}

// Close releases every Stopper, started or not, and forgets the modules.
// One-shot commands that never Start use it to release stores.
func (a *App) Close() error {
	err := a.stop(len(a.units)-1, true)
	a.units = nil
	return err
}

func (a *App) stop(from int, all bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := from; i >= 0; i-- {
		u := &a.units[i]
		if !u.started && !all {
			continue
		}
		if s, ok := u.mod.(Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("module stop failed", "module", u.id(), "error", err)
				errs = append(errs, fmt.Errorf("stopping module %s: %w", u.id(), err))
			}
		}
		u.started = false
	}
	return errors.Join(errs...)
}

// Run starts the modules, waits for ctx, then stops them.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	err := a.Stop()
	a.logger.Info("shutdown complete")
	return err
}
