package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/flemzord/surveil/internal/task"
)

// lastEventID reads the replay cursor from the Last-Event-ID header or the
// last_event_id query parameter.
func lastEventID(r *http.Request) string {
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("last_event_id")
}

// handleEvents streams a task's events as Server-Sent Events. Buffered
// events after the cursor are replayed first; the stream ends after the
// final event.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := g.runner.Manager().Subscribe(r.Context(), chi.URLParam(r, "id"), lastEventID(r))
		if err != nil {
			writeTaskError(w, err)
			return
		}
		defer g.metrics.StreamOpened()()

		rc := http.NewResponseController(w)
		// Streams outlive the server write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()

		for ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				g.logger.Warn("encoding event", "task_id", ev.TaskID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Category, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// handleWebSocket streams a task's events over a WebSocket, one JSON text
// message per event. The connection is closed normally after the final
// event.
func (g *Gateway) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := g.runner.Manager().Get(id); err != nil {
			writeTaskError(w, err)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket accept failed", "task_id", id, "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()
		defer g.metrics.StreamOpened()()

		// Clients only listen; CloseRead handles their control frames and
		// cancels ctx when they go away.
		ctx := conn.CloseRead(r.Context())

		events, err := g.runner.Manager().Subscribe(ctx, id, lastEventID(r))
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "task disappeared")
			return
		}
		for ev := range events {
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
			if ev.Final {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		}
		if rec, err := g.runner.Manager().Get(id); err == nil && rec.Status != task.StatusProcessing {
			// Resumed after the final event.
			_ = conn.Close(websocket.StatusNormalClosure, "task "+string(rec.Status))
			return
		}
		_ = conn.Close(websocket.StatusGoingAway, "stream interrupted")
	}
}
