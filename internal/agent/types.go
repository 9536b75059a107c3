// Package agent implements the generic investigation loop that turns an
// alert into a decision through iterative engine calls and evidence tool
// executions. Category-specific behavior is supplied by a Strategy.
package agent

import (
	"context"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
	"github.com/flemzord/surveil/internal/tool"
)

// Strategy supplies everything that differs between alert categories.
type Strategy interface {
	Category() alert.Category

	// Tools returns the evidence tools available to the loop.
	Tools() *tool.Registry

	SystemPrompt() string

	// Framing seeds the conversation: it names the alert and the evidence
	// sources the engine may consult.
	Framing(a *alert.Alert) string

	// DecisionPrompt asks for the structured decision once the engine has
	// stopped requesting tools.
	DecisionPrompt(a *alert.Alert) string
}

// Publisher performs the side effects of a successful analysis.
type Publisher interface {
	Publish(ctx context.Context, a *alert.Alert, d decision.Decision) error
}

// StopReason describes why the loop terminated.
type StopReason string

// StopReason constants.
const (
	StopReasonComplete      StopReason = "complete"
	StopReasonFallback      StopReason = "fallback"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonLoopDetected  StopReason = "loop_detected"
	StopReasonTokenBudget   StopReason = "token_budget"
	StopReasonTimeout       StopReason = "timeout"
	StopReasonError         StopReason = "error"
)

// Result is the outcome of one loop run.
type Result struct {
	Decision   decision.Decision
	Iterations int
	ToolCalls  int
	Usage      engine.Usage
	StopReason StopReason

	// DumpPath is set when a finalization failure produced a debug dump.
	DumpPath string
}
