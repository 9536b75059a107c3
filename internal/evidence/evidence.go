// Package evidence implements the interpretive evidence tools. Each tool
// validates its arguments, loads and filters one CSV data source, frames the
// matching records for the alert category and asks the reasoning engine to
// interpret them. Results are never cached between invocations.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/tool"
)

// maxPromptRows bounds the records embedded in one interpretation prompt.
const maxPromptRows = 200

const interpreterSystem = `You are a trade surveillance analyst. You interpret raw records ` +
	`retrieved for an investigation. Be factual, cite the specific records that support ` +
	`each observation, and state explicitly when the data is insufficient.`

// Config binds tools to their data directory, engine and category framing.
type Config struct {
	DataDir string
	Engine  engine.Engine

	// Framing is prepended to every interpretation prompt and describes what
	// the category under investigation considers suspicious.
	Framing string

	// LookbackDays is the default history window. Defaults to 30.
	LookbackDays int
}

func (c Config) withDefaults() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 30
	}
	return c
}

// selector narrows a loaded table to the records relevant to args.
type selector func(t Table, args Args) Table

// Tool is a CSV-backed interpretive evidence tool.
type Tool struct {
	name        string
	description string
	params      []Param
	source      Source
	focus       string
	selectRows  selector
	cfg         Config
}

// Interface guards.
var (
	_ tool.Tool        = (*Tool)(nil)
	_ tool.Preflighter = (*Tool)(nil)
)

func newTool(cfg Config, name, file, description, focus string, params []Param, sel selector) *Tool {
	cfg = cfg.withDefaults()
	return &Tool{
		name:        name,
		description: description,
		params:      params,
		source:      Source{Path: filepath.Join(cfg.DataDir, file)},
		focus:       focus,
		selectRows:  sel,
		cfg:         cfg,
	}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return t.name }

// Description implements tool.Tool.
func (t *Tool) Description() string { return t.description }

// Schema implements tool.Tool.
func (t *Tool) Schema() json.RawMessage { return schemaFor(t.params) }

// Preflight implements tool.Preflighter.
func (t *Tool) Preflight() error { return t.source.Check() }

// SourcePath returns the bound data file.
func (t *Tool) SourcePath() string { return t.source.Path }

// Execute implements tool.Tool.
func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	ctx, span := otel.Tracer("surveil/evidence").Start(ctx, "evidence."+t.name)
	defer span.End()

	args, problem := parseArgs(raw, t.params)
	if problem != "" {
		span.SetAttributes(attribute.String("evidence.rejected", problem))
		return tool.Errorf("%s", problem), nil
	}

	table, err := t.source.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load")
		return tool.Output{}, err
	}
	matched := t.selectRows(table, args)
	span.SetAttributes(
		attribute.Int("evidence.rows_total", len(table.Rows)),
		attribute.Int("evidence.rows_matched", len(matched.Rows)),
	)

	text, err := engine.Interpret(ctx, t.cfg.Engine, interpreterSystem, t.prompt(args, matched))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "interpret")
		return tool.Output{}, fmt.Errorf("evidence %s: %w", t.name, err)
	}
	return tool.Output{Content: text}, nil
}

func (t *Tool) prompt(args Args, matched Table) string {
	var b strings.Builder
	b.WriteString(t.cfg.Framing)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Evidence source: %s (%s)\n", t.name, filepath.Base(t.source.Path))
	fmt.Fprintf(&b, "Focus: %s\n", t.focus)
	b.WriteString("Query:")
	for _, p := range t.params {
		if v, ok := args[p.Name]; ok {
			fmt.Fprintf(&b, " %s=%s", p.Name, v)
		}
	}
	fmt.Fprintf(&b, "\nMatching records (%d):\n", len(matched.Rows))
	b.WriteString(matched.Render(maxPromptRows))
	b.WriteString("\nSummarize what these records show and how they bear on the alert.")
	return b.String()
}
