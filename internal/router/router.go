package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/surveil/internal/alert"
)

// Service is the core service name of the configured Router.
const Service = "router"

var tracer = otel.Tracer("surveil/router")

// Remote call outcomes reported in AgentResponse.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AgentResponse is the processor's answer, or the failure reaching it.
type AgentResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Result is the routing envelope. RoutedTo is nil for unsupported alerts,
// in which case Message explains why and AgentResponse is nil.
type Result struct {
	AlertID       string          `json:"alert_id"`
	AlertType     string          `json:"alert_type"`
	RuleViolated  string          `json:"rule_violated"`
	RoutedTo      *alert.Category `json:"routed_to"`
	AgentResponse *AgentResponse  `json:"agent_response,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// TaskID returns the remote task id from a successful response, if any.
func (r Result) TaskID() string {
	if r.AgentResponse == nil || r.AgentResponse.Status != StatusSuccess {
		return ""
	}
	var body struct {
		TaskID string `json:"task_id"`
	}
	_ = json.Unmarshal(r.AgentResponse.Response, &body)
	return body.TaskID
}

// Config wires a Router.
type Config struct {
	// Endpoints maps each category to its processor base URL.
	Endpoints  map[alert.Category]string
	Classifier *Classifier
	Client     *Client
	Logger     *slog.Logger
}

// Router classifies alerts and forwards them to their processor.
type Router struct {
	endpoints  map[alert.Category]string
	classifier *Classifier
	client     *Client
	logger     *slog.Logger
}

// New returns a router. Nil fields fall back to the built-in classifier,
// a client with DefaultTimeout, and a discarding logger.
func New(cfg Config) *Router {
	if cfg.Classifier == nil {
		cfg.Classifier = NewClassifier(nil)
	}
	if cfg.Client == nil {
		cfg.Client = NewClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		endpoints:  cfg.Endpoints,
		classifier: cfg.Classifier,
		client:     cfg.Client,
		logger:     cfg.Logger,
	}
}

// Classifier returns the router's classifier.
func (r *Router) Classifier() *Classifier { return r.classifier }

// Client returns the router's remote client.
func (r *Router) Client() *Client { return r.client }

// Endpoint returns the processor URL for c.
func (r *Router) Endpoint(c alert.Category) (string, bool) {
	u, ok := r.endpoints[c]
	return u, ok && u != ""
}

// Route reads the alert at path and dispatches it. Only local failures
// (unreadable or malformed alert) are returned as errors; remote failures
// are reported in the envelope.
func (r *Router) Route(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("router: reading alert: %w", err)
	}
	a, err := alert.Parse(data)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	a.SourcePath = path
	return r.Dispatch(ctx, a, data), nil
}

// Dispatch classifies a and forwards it, with its raw document, to the
// matching processor.
func (r *Router) Dispatch(ctx context.Context, a *alert.Alert, raw []byte) Result {
	info := r.classifier.Info(a)
	res := Result{AlertID: info.ID, AlertType: info.Type, RuleViolated: info.RuleCode}

	logger := r.logger.With("alert_id", a.ID, "category", info.Category)
	if !info.Category.Valid() {
		res.Message = fmt.Sprintf("Alert type %q with rule %q matches no supported category", info.Type, info.RuleCode)
		logger.Info("alert not routed")
		return res
	}
	category := info.Category
	res.RoutedTo = &category

	ctx, span := tracer.Start(ctx, "router.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("alert.id", a.ID), attribute.String("alert.category", string(category)))

	resp, err := r.forward(ctx, category, a, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("dispatch failed", "error", err)
		res.AgentResponse = &AgentResponse{Status: StatusError, Error: err.Error()}
		return res
	}
	logger.Info("alert dispatched")
	res.AgentResponse = &AgentResponse{Status: StatusSuccess, Response: resp}
	return res
}

func (r *Router) forward(ctx context.Context, c alert.Category, a *alert.Alert, raw []byte) (json.RawMessage, error) {
	endpoint, ok := r.Endpoint(c)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoEndpoint, c)
	}
	if _, err := r.client.Card(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("router: discovery: %w", err)
	}
	resp, err := r.client.CreateTask(ctx, endpoint, TaskRequest{AlertPath: a.SourcePath, AlertXML: string(raw)})
	if err != nil {
		return nil, fmt.Errorf("router: dispatch: %w", err)
	}
	return resp, nil
}
