package gateway

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free concurrency.
type Metrics struct {
	requests     atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
	uploads      atomic.Int64
	streams      atomic.Int64
}

// RecordResponse records a served request by status code.
func (m *Metrics) RecordResponse(status int) {
	m.requests.Add(1)
	switch {
	case status >= 500:
		m.serverErrors.Add(1)
	case status >= 400:
		m.clientErrors.Add(1)
	}
}

// RecordUpload records an accepted alert upload.
func (m *Metrics) RecordUpload() {
	m.uploads.Add(1)
}

// StreamOpened records a new event subscriber and returns a func that
// records its departure.
func (m *Metrics) StreamOpened() func() {
	m.streams.Add(1)
	return func() { m.streams.Add(-1) }
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:     m.requests.Load(),
		ClientErrors: m.clientErrors.Load(),
		ServerErrors: m.serverErrors.Load(),
		Uploads:      m.uploads.Load(),
		OpenStreams:  m.streams.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Requests     int64 `json:"requests"`
	ClientErrors int64 `json:"client_errors"`
	ServerErrors int64 `json:"server_errors"`
	Uploads      int64 `json:"uploads"`
	OpenStreams  int64 `json:"open_streams"`
}

// middleware counts every response by status.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordResponse(status)
	})
}
