package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/flemzord/surveil/internal/engine"
)

const healthCheckTimeout = 5 * time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Engine string `json:"engine,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the engine is reachable (or offers no health check), 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.engine != nil {
			resp.Engine = g.engine.ModelName()
			if hc, ok := g.engine.(engine.HealthChecker); ok {
				ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
				defer cancel()
				if err := hc.HealthCheck(ctx); err != nil {
					resp.Status = "degraded"
					resp.Error = err.Error()
				}
			}
		}

		status := http.StatusOK
		if resp.Status == "degraded" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
