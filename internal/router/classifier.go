package router

import (
	"slices"
	"strings"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/config"
)

// Rules are the classification lists of one category.
type Rules struct {
	Types     []string
	RuleCodes []string
	Keywords  []string
}

// DefaultRules returns the built-in classification lists.
func DefaultRules() map[alert.Category]Rules {
	return map[alert.Category]Rules{
		alert.InsiderTrading: {
			Types:     []string{"Insider Trading", "Pre-Announcement Trading", "Suspicious Trading Ahead of News"},
			RuleCodes: []string{"SMARTS-IT-001", "SMARTS-IT-002", "MAR-ART-14"},
			Keywords:  []string{"insider", "pre-announcement", "material non-public", "mnpi"},
		},
		alert.WashTrade: {
			Types:     []string{"Wash Trade", "Wash Trading", "Self-Trade", "Matched Orders"},
			RuleCodes: []string{"SMARTS-WT-001", "SMARTS-WT-002", "MAR-ART-12"},
			Keywords:  []string{"wash", "self-trade", "matched order", "circular"},
		},
	}
}

// RulesFromConfig converts configured rule sets, keyed by category name,
// into classifier overrides. Unknown category names are ignored; config
// validation reports them.
func RulesFromConfig(sets map[string]config.RuleSet) map[alert.Category]Rules {
	out := make(map[alert.Category]Rules, len(sets))
	for name, set := range sets {
		c := alert.Category(name)
		if !c.Valid() {
			continue
		}
		out[c] = Rules{Types: set.Types, RuleCodes: set.RuleCodes, Keywords: set.Keywords}
	}
	return out
}

// Classifier maps an alert to a category with a fixed precedence: exact
// type match, then exact rule-code match, then keyword match on the type
// string. Within each step insider trading is checked before wash trade.
type Classifier struct {
	rules map[alert.Category]Rules
}

// NewClassifier returns a classifier using the built-in rules. Non-empty
// lists in overrides replace the corresponding built-in list.
func NewClassifier(overrides map[alert.Category]Rules) *Classifier {
	rules := DefaultRules()
	for c, o := range overrides {
		r := rules[c]
		if len(o.Types) > 0 {
			r.Types = o.Types
		}
		if len(o.RuleCodes) > 0 {
			r.RuleCodes = o.RuleCodes
		}
		if len(o.Keywords) > 0 {
			r.Keywords = o.Keywords
		}
		rules[c] = r
	}
	return &Classifier{rules: rules}
}

// Classify returns the category of a, or alert.Unsupported.
func (c *Classifier) Classify(a *alert.Alert) alert.Category {
	typ := strings.TrimSpace(a.Type)
	code := strings.TrimSpace(a.RuleCode)
	lower := strings.ToLower(typ)

	steps := []func(Rules) bool{
		func(r Rules) bool { return typ != "" && slices.Contains(r.Types, typ) },
		func(r Rules) bool { return code != "" && slices.Contains(r.RuleCodes, code) },
		func(r Rules) bool {
			return slices.ContainsFunc(r.Keywords, func(k string) bool {
				return k != "" && strings.Contains(lower, strings.ToLower(k))
			})
		},
	}
	for _, match := range steps {
		for _, cat := range alert.Categories() {
			if match(c.rules[cat]) {
				return cat
			}
		}
	}
	return alert.Unsupported
}

// Info classifies a and returns its routing view.
func (c *Classifier) Info(a *alert.Alert) alert.Info {
	return alert.InfoFor(a, c.Classify(a))
}
