package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/task"
	"github.com/flemzord/surveil/pkg/app"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve alert triage tools over MCP on stdio",
		Long: "Expose classify_alert, route_alert and analyze_alert as MCP tools so an " +
			"assistant can triage alert files. Logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, _, err := buildRuntime(cmd, configPath(cmd), false)
			if err != nil {
				return err
			}
			defer rt.Close()
			return server.ServeStdio(newMCPServer(rt))
		},
	}
}

func newMCPServer(rt *app.Runtime) *server.MCPServer {
	s := server.NewMCPServer("surveil", version, server.WithToolCapabilities(false))
	h := &mcpHandlers{rt: rt}

	s.AddTool(mcp.NewTool("classify_alert",
		mcp.WithDescription("Parse a surveillance alert XML file and report its category."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the alert XML file")),
	), h.classify)

	s.AddTool(mcp.NewTool("route_alert",
		mcp.WithDescription("Classify an alert and forward it to the processor configured for its category."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the alert XML file")),
	), h.route)

	s.AddTool(mcp.NewTool("analyze_alert",
		mcp.WithDescription("Investigate an alert locally and return the decision document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the alert XML file")),
		mcp.WithString("category", mcp.Description("Override the classified category"),
			mcp.Enum(string(alert.InsiderTrading), string(alert.WashTrade))),
	), h.analyze)

	return s
}

type mcpHandlers struct {
	rt *app.Runtime
}

func (h *mcpHandlers) classify(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := alert.ParseFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(h.rt.Classifier.Info(a))
}

func (h *mcpHandlers) route(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := h.rt.Router.Route(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (h *mcpHandlers) analyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := alert.ParseFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c := alert.Category(req.GetString("category", ""))
	if c == "" {
		c = h.rt.Classifier.Classify(a)
	}
	if !h.rt.Runner.Supports(c) {
		return mcp.NewToolResultError(fmt.Sprintf("alert %s matches no supported category", a.ID)), nil
	}

	rec, err := h.rt.Runner.Run(ctx, a, c)
	if err != nil {
		return nil, err
	}
	if rec.Status == task.StatusError {
		return mcp.NewToolResultError(rec.Error), nil
	}
	return jsonResult(rec.Decision)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
