package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/task"
)

// TaskStatusResponse is the JSON response for GET /tasks/{id}.
type TaskStatusResponse struct {
	TaskID   string             `json:"task_id"`
	Status   task.Status        `json:"status"`
	Message  string             `json:"message,omitempty"`
	Category alert.Category     `json:"category,omitempty"`
	AlertID  string             `json:"alert_id,omitempty"`
	Decision *decision.Decision `json:"decision,omitempty"`
}

func statusResponse(rec task.Record) TaskStatusResponse {
	resp := TaskStatusResponse{TaskID: rec.ID, Status: rec.Status}
	switch rec.Status {
	case task.StatusError:
		resp.Message = rec.Error
	case task.StatusComplete:
		resp.Category = rec.Category
		resp.AlertID = rec.AlertID
		resp.Decision = rec.Decision
	}
	return resp
}

// writeTaskError maps task lookup errors onto HTTP responses.
func writeTaskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, task.ErrNotReady):
		writeError(w, http.StatusConflict, codeNotReady, err.Error())
	case errors.Is(err, task.ErrCancelUnsupported):
		writeError(w, http.StatusNotImplemented, codeUnsupportedOp, "analyses cannot be cancelled once started")
	default:
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

func (g *Gateway) handleTaskStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := g.runner.Manager().Get(chi.URLParam(r, "id"))
		if err != nil {
			writeTaskError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse(rec))
	}
}

func (g *Gateway) handleDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, d, err := g.runner.Manager().Decision(chi.URLParam(r, "id"))
		if err != nil {
			writeTaskError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", decision.SafeName(rec.AlertID)+".json"))
		writeJSON(w, http.StatusOK, d)
	}
}

// handleReport serves the report written by the publisher, rendering one
// from the task's decision when no file exists.
func (g *Gateway) handleReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, d, err := g.runner.Manager().Decision(chi.URLParam(r, "id"))
		if err != nil {
			writeTaskError(w, err)
			return
		}

		body, err := os.ReadFile(decision.ReportPath(g.reportDir(), rec.AlertID))
		if err != nil {
			var buf bytes.Buffer
			if err := decision.RenderReport(&buf, decision.Report{Decision: d}); err != nil {
				writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
				return
			}
			body = buf.Bytes()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", decision.SafeName(rec.AlertID)+".html"))
		_, _ = w.Write(body)
	}
}

func (g *Gateway) handleCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := g.runner.Manager().Cancel(chi.URLParam(r, "id"))
		if err == nil {
			err = task.ErrCancelUnsupported
		}
		writeTaskError(w, err)
	}
}

func (g *Gateway) reportDir() string {
	return filepath.Join(g.appCtx.OutputDir, "reports")
}
