// Package playbook holds the category-specific investigation strategies:
// which evidence tools are available, how the engine is briefed and what it
// must return.
package playbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flemzord/surveil/internal/agent"
	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/evidence"
	"github.com/flemzord/surveil/internal/tool"
)

// ErrUnsupported is returned for categories without a playbook.
var ErrUnsupported = errors.New("playbook: unsupported category")

// Deps are the shared collaborators of every playbook.
type Deps struct {
	Engine       engine.Engine
	DataDir      string
	LookbackDays int

	// Observer, if set, is notified of every tool execution.
	Observer tool.Observer
}

// Playbook is an agent.Strategy for one alert category.
type Playbook struct {
	category alert.Category
	system   string
	framing  string
	guidance string
	registry *tool.Registry
}

var _ agent.Strategy = (*Playbook)(nil)

// New returns the playbook for c.
func New(c alert.Category, deps Deps) (*Playbook, error) {
	switch c {
	case alert.InsiderTrading:
		return InsiderTrading(deps), nil
	case alert.WashTrade:
		return WashTrade(deps), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, c)
	}
}

// All returns one playbook per supported category.
func All(deps Deps) map[alert.Category]*Playbook {
	out := make(map[alert.Category]*Playbook, len(alert.Categories()))
	for _, c := range alert.Categories() {
		p, _ := New(c, deps)
		out[c] = p
	}
	return out
}

// binder creates one evidence tool for a playbook.
type binder func(evidence.Config) *evidence.Tool

func build(c alert.Category, deps Deps, system, framing, guidance string, tools ...binder) *Playbook {
	cfg := evidence.Config{
		DataDir:      deps.DataDir,
		Engine:       deps.Engine,
		Framing:      framing,
		LookbackDays: deps.LookbackDays,
	}
	bound := make([]tool.Tool, 0, len(tools))
	for _, bind := range tools {
		bound = append(bound, bind(cfg))
	}
	reg := tool.NewRegistry(bound...)
	if deps.Observer != nil {
		reg.SetObserver(deps.Observer)
	}
	return &Playbook{category: c, system: system, framing: framing, guidance: guidance, registry: reg}
}

// Category implements agent.Strategy.
func (p *Playbook) Category() alert.Category { return p.category }

// Tools implements agent.Strategy.
func (p *Playbook) Tools() *tool.Registry { return p.registry }

// SystemPrompt implements agent.Strategy.
func (p *Playbook) SystemPrompt() string { return p.system }

// Framing implements agent.Strategy.
func (p *Playbook) Framing(a *alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Investigate the following %s alert.\n\n", strings.ToLower(p.category.Title()))
	b.WriteString(a.Summary())
	if a.SourcePath != "" {
		fmt.Fprintf(&b, "Source document: %s\n", a.SourcePath)
	}
	b.WriteString("\nEvidence sources available through your tools:\n")
	for _, d := range p.registry.Definitions() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	b.WriteString("\nGather the evidence you need one step at a time. When you have enough to reach a conclusion, " +
		"reply without calling any tool.")
	return b.String()
}

// DecisionPrompt implements agent.Strategy.
func (p *Playbook) DecisionPrompt(a *alert.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conclude your investigation of alert %s.\n\n", a.ID)
	b.WriteString(p.guidance)
	b.WriteString("\n\nDeterminations:\n" +
		"- ESCALATE: the evidence supports a genuine violation that needs investigation.\n" +
		"- CLOSE: the activity has a credible legitimate explanation.\n" +
		"- NEEDS_HUMAN_REVIEW: the evidence is contradictory or insufficient.\n\n" +
		"Score genuine_alert_confidence and false_positive_confidence independently from 0 to 100; " +
		"they need not sum to 100. The reasoning narrative must be at least ")
	fmt.Fprintf(&b, "%d characters.\n\n", decision.MinReasoningLength)
	b.WriteString("Respond with a single JSON object, and nothing else, matching this schema:\n")
	b.WriteString(decision.Schema)
	return b.String()
}
