package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/flemzord/surveil/internal/agent"
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/audit"
	"github.com/flemzord/surveil/internal/config"
	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/cron"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/playbook"
	"github.com/flemzord/surveil/internal/router"
	"github.com/flemzord/surveil/internal/security"
	"github.com/flemzord/surveil/internal/stream"
	"github.com/flemzord/surveil/internal/task"
	"github.com/flemzord/surveil/internal/telemetry"
	"github.com/flemzord/surveil/internal/tool"
)

const (
	defaultTaskTTL  = time.Hour
	auditFile       = "audit.jsonl"
	gatewayNS       = "gateway"
	shutdownTimeout = 10 * time.Second
)

// ErrNoEngine is returned when no engine module published the engine service.
var ErrNoEngine = errors.New("app: no engine module configured")

// Options tunes Build.
type Options struct {
	// Version is reported in trace resources.
	Version string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// LogWriter receives log output. Defaults to os.Stderr.
	LogWriter io.Writer

	// Serve loads the gateway and the maintenance jobs. One-shot commands
	// leave it unset.
	Serve bool
}

// Runtime is a fully wired process: loaded modules plus the components
// built on top of them.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	App        *core.App
	Context    *core.AppContext
	Engine     engine.Engine
	Store      decision.Store
	Playbooks  map[alert.Category]*playbook.Playbook
	Runner     *task.Runner
	Router     *router.Router
	Classifier *router.Classifier
	Metrics    *telemetry.Metrics

	audit    *audit.Logger
	tracing  telemetry.Shutdown
	started  bool
	closed   bool
	moduleID []string
}

// NewLogger returns the process logger: a text handler on w that redacts
// API keys, authorization values and the given secrets.
func NewLogger(w io.Writer, level slog.Level, secrets ...string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	redactor := security.NewRedactor()
	for _, s := range secrets {
		redactor.AddLiteral(s)
	}
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(inner, redactor))
}

// Secrets returns the credentials found in the module configurations.
func Secrets(cfg *config.Config) []string {
	var out []string
	for _, id := range slices.Sorted(maps.Keys(cfg.Modules)) {
		node := cfg.Modules[id]
		out = append(out, security.SecretsFromNode(&node)...)
	}
	return out
}

// Build loads the configured modules and wires the analysis pipeline:
// playbooks, loops, the task runner, the router and, when serving, the
// maintenance scheduler. The caller must Close the runtime.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	logger := NewLogger(opts.LogWriter, opts.LogLevel, Secrets(cfg)...)

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, telemetry.Options{Version: opts.Version})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logger, tracing: shutdown, Metrics: telemetry.NewMetrics()}

	appCtx := core.NewAppContext(logger, cfg.Analysis.DataDir, cfg.Analysis.OutputDir).
		WithModuleConfigs(cfg.Modules)
	appCtx.RegisterService(telemetry.MetricsService, rt.Metrics)
	rt.Context = appCtx
	rt.App = core.NewApp(appCtx)

	for _, id := range config.Resolve(cfg) {
		if !opts.Serve && core.ModuleID(id).Namespace() == gatewayNS {
			continue
		}
		rt.moduleID = append(rt.moduleID, id)
	}
	if err := rt.App.LoadModules(rt.moduleID); err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	if err := rt.wire(opts); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(opts Options) error {
	cfg := rt.Config
	appCtx := rt.Context

	e, err := core.ServiceAs[engine.Engine](appCtx, engine.Service)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoEngine, err)
	}
	rt.Engine = e

	if s, err := core.ServiceAs[decision.Store](appCtx, decision.StoreService); err == nil {
		rt.Store = s
	} else {
		rt.Store = decision.NewFileStore(filepath.Join(cfg.Analysis.OutputDir, "decisions"))
		appCtx.RegisterService(decision.StoreService, rt.Store)
	}

	rt.audit, err = audit.Open(filepath.Join(cfg.Analysis.OutputDir, auditFile), rt.Metrics.ObserveDecision)
	if err != nil {
		return err
	}
	publisher := &decision.Publisher{
		Store:     rt.Store,
		ReportDir: filepath.Join(cfg.Analysis.OutputDir, "reports"),
		Audit:     rt.audit,
		Model:     e.ModelName(),
	}

	rt.Playbooks = playbook.All(playbook.Deps{
		Engine:       e,
		DataDir:      cfg.Analysis.DataDir,
		LookbackDays: cfg.Analysis.LookbackDays,
		Observer:     rt.Metrics,
	})
	loopCfg := agent.LoopConfig{
		MaxIterations: cfg.Analysis.MaxIterations,
		TokenBudget:   cfg.Analysis.TokenBudget,
		Timeout:       cfg.Analysis.Timeout,
		LoopThreshold: cfg.Analysis.LoopThreshold,
		DumpDir:       filepath.Join(cfg.Analysis.OutputDir, "debug"),
		DebugMessages: cfg.Analysis.DebugMessages,
	}
	loops := make(map[alert.Category]*agent.Loop, len(rt.Playbooks))
	for c, pb := range rt.Playbooks {
		loops[c] = agent.NewLoop(e, pb, loopCfg, agent.Options{
			Publisher: publisher,
			Logger:    rt.Logger.With("component", "agent", "category", c),
		})
	}

	rt.Runner = task.NewRunner(task.RunnerConfig{
		Manager:       task.NewManager(task.ManagerConfig{BufferSize: cfg.Analysis.BufferSize}),
		Loops:         loops,
		Aggregate:     tool.NewAggregate(),
		Producer:      stream.ProducerConfig{KeepAlive: cfg.Analysis.KeepAliveInterval},
		Logger:        rt.Logger.With("component", "runner"),
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
	})
	appCtx.RegisterService(task.RunnerService, rt.Runner)
	rt.App.AppendModule(&runnerModule{runner: rt.Runner})

	rt.Router = NewRouter(cfg, rt.Logger.With("component", "router"))
	rt.Classifier = rt.Router.Classifier()
	appCtx.RegisterService(router.Service, rt.Router)

	if opts.Serve {
		if err := rt.wireMaintenance(); err != nil {
			return err
		}
	}
	return nil
}

// NewRouter builds the alert router from the routing section. It needs no
// loaded modules.
func NewRouter(cfg *config.Config, logger *slog.Logger) *router.Router {
	endpoints := make(map[alert.Category]string, len(cfg.Routing.Endpoints))
	for name, u := range cfg.Routing.Endpoints {
		endpoints[alert.Category(name)] = u
	}
	return router.New(router.Config{
		Endpoints:  endpoints,
		Classifier: router.NewClassifier(router.RulesFromConfig(cfg.Routing.Rules)),
		Client:     router.NewClient(cfg.Routing.Timeout),
		Logger:     logger,
	})
}

// wireMaintenance schedules task eviction and the periodic evidence source
// check.
func (rt *Runtime) wireMaintenance() error {
	ttl := rt.Config.Analysis.TaskTTL
	if ttl <= 0 {
		ttl = defaultTaskTTL
	}
	sched := cron.NewScheduler(rt.Logger.With("component", "cron"))
	if err := sched.RegisterJob(&cron.TaskEvictionJob{
		Tasks:        rt.Runner.Manager(),
		MaxAge:       ttl,
		Logger:       rt.Logger,
		ScheduleExpr: rt.Config.Analysis.EvictionSchedule,
	}); err != nil {
		return err
	}
	if err := sched.RegisterJob(&cron.SourceCheckJob{Sources: rt, Logger: rt.Logger}); err != nil {
		return err
	}
	rt.Context.RegisterService(cron.Service, sched)
	rt.App.AppendModule(&schedulerModule{scheduler: sched})
	return nil
}

// Preflight checks the evidence sources of every playbook.
func (rt *Runtime) Preflight() error {
	var errs []error
	for _, c := range alert.Categories() {
		pb, ok := rt.Playbooks[c]
		if !ok {
			continue
		}
		if err := pb.Tools().Preflight(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
		}
	}
	return errors.Join(errs...)
}

// ModuleIDs returns the loaded module ids in load order.
func (rt *Runtime) ModuleIDs() []string { return rt.moduleID }

// Serve starts every component and blocks until ctx is cancelled.
func (rt *Runtime) Serve(ctx context.Context) error {
	rt.started = true
	return rt.App.Run(ctx)
}

// Close releases the runtime. Safe to call after Serve returns.
func (rt *Runtime) Close() {
	if rt.closed {
		return
	}
	rt.closed = true
	if !rt.started {
		if err := rt.App.Close(); err != nil {
			rt.Logger.Warn("releasing modules", "error", err)
		}
	}
	if rt.audit != nil {
		if err := rt.audit.Close(); err != nil {
			rt.Logger.Warn("closing audit log", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.tracing(ctx); err != nil {
		rt.Logger.Warn("flushing traces", "error", err)
	}
}

// runnerModule ties the task runner to the app lifecycle so running
// analyses are aborted on shutdown.
type runnerModule struct {
	runner *task.Runner
}

func (m *runnerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "task.runner"}
}

func (m *runnerModule) Start() error { return nil }

func (m *runnerModule) Stop(_ context.Context) error {
	m.runner.Close()
	return nil
}

// schedulerModule runs the maintenance scheduler with the app.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: cron.Service}
}

func (m *schedulerModule) Start() error { return m.scheduler.Start() }

func (m *schedulerModule) Stop(ctx context.Context) error { return m.scheduler.Stop(ctx) }
