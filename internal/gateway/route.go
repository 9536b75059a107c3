package gateway

import (
	"encoding/json"
	"net/http"
)

// RouteRequest is the body of POST /route.
type RouteRequest struct {
	AlertPath string `json:"alert_path"`
}

// handleRoute classifies the referenced alert and forwards it to its
// processor. Remote failures are reported inside the envelope with 200.
func (g *Gateway) handleRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.router == nil {
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "routing is not configured")
			return
		}
		var req RouteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlertPath == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "alert_path is required")
			return
		}
		res, err := g.router.Route(r.Context(), req.AlertPath)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidAlert, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
