package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/task"
)

// apiError is a request failure with its HTTP mapping.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func writeAPIError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		writeError(w, ae.status, ae.code, ae.message)
		return
	}
	writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
}

// SubmitResponse is returned when an analysis is accepted.
type SubmitResponse struct {
	TaskID   string         `json:"task_id"`
	Status   task.Status    `json:"status"`
	AlertID  string         `json:"alert_id"`
	Category alert.Category `json:"category"`
}

// submit parses an alert document, stores it next to the outputs and starts
// its analysis. An empty category is resolved by the classifier.
func (g *Gateway) submit(data []byte, category alert.Category) (SubmitResponse, error) {
	a, err := alert.Parse(data)
	if err != nil {
		return SubmitResponse{}, &apiError{http.StatusBadRequest, codeInvalidAlert, err.Error()}
	}
	if category == "" {
		category = g.classifier.Classify(a)
	}
	if !g.runner.Supports(category) {
		return SubmitResponse{}, &apiError{http.StatusBadRequest, codeUnsupported,
			fmt.Sprintf("alert %s (type %q, rule %q) matches no configured category", a.ID, a.Type, a.RuleCode)}
	}

	path, err := g.saveAlert(a.ID, data)
	if err != nil {
		return SubmitResponse{}, err
	}
	a.SourcePath = path

	rec, err := g.runner.Submit(a, category)
	if err != nil {
		return SubmitResponse{}, err
	}
	g.logger.Info("analysis accepted", "task_id", rec.ID, "alert_id", a.ID, "category", category)
	return SubmitResponse{TaskID: rec.ID, Status: rec.Status, AlertID: a.ID, Category: category}, nil
}

func (g *Gateway) saveAlert(alertID string, data []byte) (string, error) {
	dir := filepath.Join(g.appCtx.OutputDir, "alerts")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("gateway: %w", err)
	}
	path := filepath.Join(dir, decision.SafeName(alertID)+".xml")
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("gateway: %w", err)
	}
	return path, nil
}

// handleUpload accepts a multipart alert upload (field "file") and starts
// its analysis out of band.
func (g *Gateway) handleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, `multipart field "file" is required`)
			return
		}
		defer func() { _ = file.Close() }()

		if !strings.EqualFold(filepath.Ext(header.Filename), ".xml") {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, "only .xml alert files are accepted")
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
			return
		}

		resp, err := g.submit(data, "")
		if err != nil {
			writeAPIError(w, err)
			return
		}
		g.metrics.RecordUpload()
		writeJSON(w, http.StatusAccepted, resp)
	}
}
