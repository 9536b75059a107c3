package alert

// Category selects the specialized processor for an alert.
type Category string

// Supported categories. InsiderTrading is category A and WashTrade is
// category B; classification always checks A before B.
const (
	InsiderTrading Category = "insider_trading"
	WashTrade      Category = "wash_trade"
	Unsupported    Category = "unsupported"
)

// Categories lists the supported categories in precedence order.
func Categories() []Category {
	return []Category{InsiderTrading, WashTrade}
}

// Valid reports whether c names a supported category.
func (c Category) Valid() bool {
	return c == InsiderTrading || c == WashTrade
}

// Title is the human-readable category name.
func (c Category) Title() string {
	switch c {
	case InsiderTrading:
		return "Insider Trading"
	case WashTrade:
		return "Wash Trade"
	default:
		return "Unsupported"
	}
}

// Info is the routing view of an alert.
type Info struct {
	ID         string   `json:"alert_id"`
	Type       string   `json:"alert_type"`
	RuleCode   string   `json:"rule_violated"`
	Category   Category `json:"category"`
	SourcePath string   `json:"source_path,omitempty"`
}

// InfoFor builds the routing view of a with the given category.
func InfoFor(a *Alert, c Category) Info {
	return Info{
		ID:         a.ID,
		Type:       a.Type,
		RuleCode:   a.RuleCode,
		Category:   c,
		SourcePath: a.SourcePath,
	}
}
