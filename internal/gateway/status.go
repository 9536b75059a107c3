package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/task"
	"github.com/flemzord/surveil/internal/tool"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime     float64                `json:"uptime_seconds"`
	HTTP       MetricsSnapshot        `json:"http"`
	Tasks      map[task.Status]int    `json:"tasks"`
	Tools      tool.AggregateSnapshot `json:"tools"`
	Categories []alert.Category       `json:"categories"`
	Routing    bool                   `json:"routing"`

	// Maintenance reports the latest pass of each maintenance job.
	Maintenance map[string]MaintenanceRun `json:"maintenance,omitempty"`
}

// MaintenanceRun is the latest outcome of one maintenance job.
type MaintenanceRun struct {
	LastRun    time.Time `json:"last_run"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:     time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			HTTP:       g.metrics.Snapshot(),
			Tasks:      map[task.Status]int{},
			Categories: []alert.Category{},
			Routing:    g.router != nil,
		}

		if g.runner != nil {
			resp.Tasks = g.runner.Manager().Counts()
			resp.Tools = g.runner.Aggregate().Snapshot()
			for _, c := range alert.Categories() {
				if g.runner.Supports(c) {
					resp.Categories = append(resp.Categories, c)
				}
			}
		}

		if g.scheduler != nil {
			resp.Maintenance = make(map[string]MaintenanceRun)
			for name, run := range g.scheduler.Last() {
				m := MaintenanceRun{LastRun: run.At, DurationMS: run.Duration.Milliseconds()}
				if run.Err != nil {
					m.Error = run.Err.Error()
				}
				resp.Maintenance[name] = m
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// handleMetrics refreshes the task gauges and serves the Prometheus registry.
func (g *Gateway) handleMetrics() http.Handler {
	promHandler := g.telemetry.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.runner != nil {
			counts := g.runner.Manager().Counts()
			byName := make(map[string]int, len(counts))
			for s, n := range counts {
				byName[string(s)] = n
			}
			g.telemetry.SetTasks(byName)
		}
		promHandler.ServeHTTP(w, r)
	})
}
