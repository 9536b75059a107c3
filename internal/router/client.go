package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/stream"
)

// DefaultTimeout is the ceiling applied to every remote call.
const DefaultTimeout = 5 * time.Minute

const (
	cardPath    = "/.well-known/agent-card.json"
	tasksPath   = "/tasks"
	maxBodySize = 1 << 20
)

// Card describes a processor. It is served at cardPath under the
// processor's base URL.
type Card struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	URL         string         `json:"url"`
	Version     string         `json:"version"`
	Category    alert.Category `json:"category"`
	Streaming   bool           `json:"streaming"`
	Skills      []Skill        `json:"skills"`
}

// Skill is one capability advertised by a Card.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TaskRequest is the body of a task-creation request. At least one of the
// fields must be set; AlertXML takes precedence.
type TaskRequest struct {
	AlertPath string `json:"alert_path,omitempty"`
	AlertXML  string `json:"alert_xml,omitempty"`
}

// Client talks to remote processors.
type Client struct {
	http *http.Client
}

// NewClient returns a client whose calls are bounded by timeout, or by
// DefaultTimeout when timeout is zero.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}}
}

// Card fetches the capability card of the processor at endpoint.
func (c *Client) Card(ctx context.Context, endpoint string) (Card, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, join(endpoint, cardPath), nil)
	if err != nil {
		return Card{}, err
	}
	body, err := c.do(req)
	if err != nil {
		return Card{}, err
	}
	var card Card
	if err := json.Unmarshal(body, &card); err != nil {
		return Card{}, fmt.Errorf("router: decoding card: %w", err)
	}
	return card, nil
}

// CreateTask submits an alert to the processor at endpoint and returns the
// raw response body.
func (c *Client) CreateTask(ctx context.Context, endpoint string, tr TaskRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, join(endpoint, tasksPath), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("router: task response is not JSON")
	}
	return body, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("router: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: %d %s", ErrRemoteStatus, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Follow subscribes to the event stream of a remote task and calls fn for
// every event until the final one. Events after lastEventID are replayed
// first. A non-nil error from fn stops the subscription.
func (c *Client) Follow(ctx context.Context, endpoint, taskID, lastEventID string, fn func(stream.Event) error) error {
	u := join(endpoint, tasksPath+"/"+url.PathEscape(taskID)+"/ws")
	if lastEventID != "" {
		u += "?last_event_id=" + url.QueryEscape(lastEventID)
	}
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("router: subscribing to %s: %w", taskID, err)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(maxBodySize)

	for {
		var ev stream.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return ErrStreamClosed
			}
			return fmt.Errorf("router: reading stream: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.Final {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
