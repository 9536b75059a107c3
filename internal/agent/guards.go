package agent

import (
	"encoding/json"

	"github.com/flemzord/surveil/internal/engine"
)

// evidenceQuery identifies a tool call by name and arguments. Arguments are
// re-encoded so object key order does not matter; unparseable arguments
// are used verbatim.
func evidenceQuery(name string, args json.RawMessage) string {
	var v any
	if json.Unmarshal(args, &v) == nil {
		if canonical, err := json.Marshal(v); err == nil {
			args = canonical
		}
	}
	return name + " " + string(args)
}

// repeatGuard stops an investigation that keeps asking the same evidence
// question. Owned by one run.
type repeatGuard struct {
	limit int
	asked map[string]int
}

func newRepeatGuard(limit int) *repeatGuard {
	return &repeatGuard{limit: limit, asked: make(map[string]int)}
}

// observe counts a batch of tool calls and returns the name of the first
// tool whose exact query reached the limit.
func (g *repeatGuard) observe(calls []engine.ToolCall) (string, bool) {
	for _, tc := range calls {
		q := evidenceQuery(tc.Name, tc.Arguments)
		g.asked[q]++
		if g.asked[q] >= g.limit {
			return tc.Name, true
		}
	}
	return "", false
}

// tokenBudget accumulates engine usage against a limit. A zero limit never
// runs out.
type tokenBudget struct {
	limit int
	used  engine.Usage
}

func (b *tokenBudget) charge(u engine.Usage) {
	b.used.PromptTokens += u.PromptTokens
	b.used.CompletionTokens += u.CompletionTokens
	b.used.TotalTokens += u.TotalTokens
}

func (b *tokenBudget) spent() bool {
	return b.limit > 0 && b.used.TotalTokens >= b.limit
}
