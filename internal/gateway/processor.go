package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/router"
)

const maxTaskRequestSize = 5 << 20

var errOutsideRoots = errors.New("alert_path must be inside the data or output directory")

// readAlertFile reads an alert file named by a processor request. Relative
// paths are taken from the data directory; paths leaving both the data and
// the output directory, including through symlinks, are refused.
func (g *Gateway) readAlertFile(path string) ([]byte, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.appCtx.DataDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{g.appCtx.DataDir, g.appCtx.OutputDir} {
		if dir == "" {
			continue
		}
		base, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, abs)
		if err != nil || !filepath.IsLocal(rel) {
			continue
		}
		root, err := os.OpenRoot(base)
		if err != nil {
			return nil, err
		}
		defer func() { _ = root.Close() }()
		return root.ReadFile(rel)
	}
	return nil, errOutsideRoots
}

// requireCategory rejects processor requests for categories without a
// configured loop.
func (g *Gateway) requireCategory(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := alert.Category(chi.URLParam(r, "category"))
		if !c.Valid() || !g.runner.Supports(c) {
			writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no processor for category %q", c))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleCard serves the processor's capability card.
func (g *Gateway) handleCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := alert.Category(chi.URLParam(r, "category"))
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		writeJSON(w, http.StatusOK, router.Card{
			Name:        c.Title() + " Analyst",
			Description: fmt.Sprintf("Investigates %s surveillance alerts and returns an ESCALATE, CLOSE or NEEDS_HUMAN_REVIEW decision.", strings.ToLower(c.Title())),
			URL:         fmt.Sprintf("%s://%s/agents/%s", scheme, r.Host, c),
			Version:     "1",
			Category:    c,
			Streaming:   true,
			Skills: []router.Skill{{
				ID:          "analyze_alert",
				Name:        "Analyze alert",
				Description: "Gathers evidence for the alert and produces a structured decision.",
			}},
		})
	}
}

// handleCreateTask starts an analysis for the processor's category. The
// alert is taken from alert_xml, or read from alert_path inside the data or
// output directory.
func (g *Gateway) handleCreateTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req router.TaskRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxTaskRequestSize)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "request body must be a JSON task request")
			return
		}

		data := []byte(req.AlertXML)
		if len(strings.TrimSpace(req.AlertXML)) == 0 {
			if req.AlertPath == "" {
				writeError(w, http.StatusBadRequest, codeInvalidRequest, "alert content is required (alert_xml or alert_path)")
				return
			}
			if !strings.EqualFold(filepath.Ext(req.AlertPath), ".xml") {
				writeError(w, http.StatusBadRequest, codeInvalidRequest, "alert_path must reference an .xml file")
				return
			}
			raw, err := g.readAlertFile(req.AlertPath)
			if err != nil {
				writeError(w, http.StatusBadRequest, codeInvalidRequest, "reading alert_path: "+err.Error())
				return
			}
			data = raw
		}

		resp, err := g.submit(data, alert.Category(chi.URLParam(r, "category")))
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, resp)
	}
}
