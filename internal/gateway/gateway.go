// Package gateway provides the HTTP surface of the service: alert upload,
// task polling and event streams, decision downloads, routing, the
// per-category processor protocol, and health, status and metrics. It binds
// to loopback by default and follows the module system pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/cron"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/router"
	"github.com/flemzord/surveil/internal/security"
	"github.com/flemzord/surveil/internal/task"
	"github.com/flemzord/surveil/internal/telemetry"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	metrics   *Metrics
	limiter   *security.RateLimiter
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	runner     *task.Runner
	router     *router.Router
	classifier *router.Classifier
	telemetry  *telemetry.Metrics
	engine     engine.Engine
	scheduler  *cron.Scheduler
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.config.defaults()
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = &Metrics{}
	ctx.RegisterService("gateway.metrics", g.metrics)
	if g.config.SubmissionsPerMin > 0 {
		g.limiter = security.NewRateLimiter(g.config.SubmissionsPerMin, time.Minute)
	}
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// resolve binds the services published by other components. Missing
// services disable the routes that need them.
func (g *Gateway) resolve() {
	if r, err := core.ServiceAs[*task.Runner](g.appCtx, task.RunnerService); err == nil {
		g.runner = r
	}
	if r, err := core.ServiceAs[*router.Router](g.appCtx, router.Service); err == nil {
		g.router = r
		g.classifier = r.Classifier()
	}
	if g.classifier == nil {
		g.classifier = router.NewClassifier(nil)
	}
	if m, err := core.ServiceAs[*telemetry.Metrics](g.appCtx, telemetry.MetricsService); err == nil {
		g.telemetry = m
	}
	if e, err := core.ServiceAs[engine.Engine](g.appCtx, engine.Service); err == nil {
		g.engine = e
	}
	if s, err := core.ServiceAs[*cron.Scheduler](g.appCtx, cron.Service); err == nil {
		g.scheduler = s
	}
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	g.resolve()
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      otelhttp.NewHandler(g.buildRouter(), "gateway"),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
