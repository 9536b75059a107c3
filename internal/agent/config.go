package agent

import (
	"cmp"
	"time"
)

// LoopConfig bounds one investigation.
type LoopConfig struct {
	// MaxIterations caps the Deciding rounds.
	MaxIterations int

	// TokenBudget caps cumulative prompt and completion tokens. Zero is
	// unlimited.
	TokenBudget int

	// Timeout caps the wall-clock duration of a run.
	Timeout time.Duration

	// LoopThreshold is the repeat count of one exact evidence query that
	// declares the run stuck. Must be at least 2.
	LoopThreshold int

	// DumpDir receives a debug dump when finalization fails. Empty
	// disables dumps.
	DumpDir string

	// DebugMessages is how many trailing messages a dump keeps.
	DebugMessages int
}

// DefaultLoopConfig holds the bounds used for zero fields.
var DefaultLoopConfig = LoopConfig{
	MaxIterations: 10,
	Timeout:       5 * time.Minute,
	LoopThreshold: 3,
	DebugMessages: 10,
}

func (c LoopConfig) withDefaults() LoopConfig {
	d := DefaultLoopConfig
	c.MaxIterations = cmp.Or(c.MaxIterations, d.MaxIterations)
	c.Timeout = cmp.Or(c.Timeout, d.Timeout)
	c.LoopThreshold = cmp.Or(c.LoopThreshold, d.LoopThreshold)
	c.DebugMessages = cmp.Or(c.DebugMessages, d.DebugMessages)
	return c
}
