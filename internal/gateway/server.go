package gateway

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/surveil/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.metrics.middleware)

	// Public: no auth required.
	r.Get("/health", g.handleHealth())
	if g.telemetry != nil {
		r.Handle("/metrics", g.handleMetrics())
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.logger))
		}
		r.Get("/status", g.handleStatus())
		r.With(g.limitSubmissions).Post("/route", g.handleRoute())

		r.Group(func(r chi.Router) {
			r.Use(g.requireRunner)
			r.With(g.limitSubmissions).Post("/upload", g.handleUpload())
			r.Route("/tasks/{id}", g.taskRoutes)

			r.Route("/agents/{category}", func(r chi.Router) {
				r.Use(g.requireCategory)
				r.Get("/.well-known/agent-card.json", g.handleCard())
				r.With(g.limitSubmissions).Post("/tasks", g.handleCreateTask())
				r.Route("/tasks/{id}", g.taskRoutes)
			})
		})
	})

	return r
}

// taskRoutes are served both at the top level and under each processor.
func (g *Gateway) taskRoutes(r chi.Router) {
	r.Get("/", g.handleTaskStatus())
	r.Get("/events", g.handleEvents())
	r.Get("/ws", g.handleWebSocket())
	r.Get("/decision", g.handleDecision())
	r.Get("/report", g.handleReport())
	r.Post("/cancel", g.handleCancel())
}

func (g *Gateway) requireRunner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.runner == nil {
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "analysis is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitSubmissions applies the per-client submission limit, keyed by the
// remote address without its port.
func (g *Gateway) limitSubmissions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if err := g.limiter.Allow(client); errors.Is(err, security.ErrRateLimited) {
			wait := g.limiter.RetryAfter(client)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			g.logger.Warn("submission rate limited", "client", client, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many submissions, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
