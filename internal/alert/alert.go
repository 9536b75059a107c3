// Package alert models a surveillance alert document and its category.
package alert

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Sentinel errors for alert parsing.
var (
	// ErrMalformed indicates the document is not a well-formed alert.
	ErrMalformed = errors.New("alert: malformed document")

	// ErrMissingID indicates the document has no alert identifier.
	ErrMissingID = errors.New("alert: missing alert id")
)

// Alert is a parsed surveillance alert. It is immutable once parsed.
type Alert struct {
	XMLName      xml.Name     `xml:"SurveillanceAlert" json:"-"`
	ID           string       `xml:"AlertID" json:"alert_id"`
	Type         string       `xml:"AlertType" json:"alert_type"`
	RuleCode     string       `xml:"RuleViolated" json:"rule_violated"`
	GeneratedAt  string       `xml:"GeneratedTimestamp" json:"generated_at,omitempty"`
	Trader       Trader       `xml:"Trader" json:"trader"`
	Account      Account      `xml:"Account" json:"account"`
	Activity     Activity     `xml:"SuspiciousActivity" json:"activity"`
	Anomaly      Anomaly      `xml:"AnomalyIndicators" json:"anomaly"`
	RelatedEvent RelatedEvent `xml:"RelatedEvent" json:"related_event"`

	// SourcePath is the file the alert was read from, if any.
	SourcePath string `xml:"-" json:"source_path,omitempty"`
}

// Trader identifies the person behind the flagged activity.
type Trader struct {
	ID         string `xml:"TraderID" json:"trader_id"`
	Name       string `xml:"Name" json:"name,omitempty"`
	Department string `xml:"Department" json:"department,omitempty"`
}

// Account identifies the trading account and, for wash trades, the
// account on the other side.
type Account struct {
	ID             string `xml:"AccountID" json:"account_id"`
	CounterpartyID string `xml:"CounterpartyAccountID" json:"counterparty_account_id,omitempty"`
}

// Activity is the flagged trade.
type Activity struct {
	Symbol     string  `xml:"Symbol" json:"symbol"`
	Side       string  `xml:"Side" json:"side,omitempty"`
	Quantity   float64 `xml:"Quantity" json:"quantity,omitempty"`
	Price      float64 `xml:"Price" json:"price,omitempty"`
	TotalValue float64 `xml:"TotalValue" json:"total_value,omitempty"`
	TradeDate  string  `xml:"TradeDate" json:"trade_date"`
}

// Anomaly carries the scoring produced by the surveillance platform.
type Anomaly struct {
	Score      float64 `xml:"AnomalyScore" json:"anomaly_score,omitempty"`
	ProfitLoss float64 `xml:"ProfitLoss" json:"profit_loss,omitempty"`
}

// RelatedEvent is the market event the trade is suspected to anticipate.
type RelatedEvent struct {
	Type        string `xml:"EventType" json:"event_type,omitempty"`
	Date        string `xml:"EventDate" json:"event_date,omitempty"`
	Description string `xml:"Description" json:"description,omitempty"`
}

// dateLayout is the layout of TradeDate and EventDate.
const dateLayout = "2006-01-02"

// TradeTime parses the trade date. The zero time is returned when the
// alert carries no usable date.
func (a *Alert) TradeTime() time.Time {
	t, err := time.Parse(dateLayout, strings.TrimSpace(a.Activity.TradeDate))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseFile reads and parses the alert stored at path.
func ParseFile(path string) (*Alert, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("alert: reading %s: %w", path, err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.SourcePath = path
	return a, nil
}

// Parse decodes an alert document.
func Parse(data []byte) (*Alert, error) {
	var a Alert
	if err := xml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	a.ID = strings.TrimSpace(a.ID)
	a.Type = strings.TrimSpace(a.Type)
	a.RuleCode = strings.TrimSpace(a.RuleCode)
	if a.ID == "" {
		return nil, ErrMissingID
	}
	return &a, nil
}

// Summary renders the alert as plain text for prompts.
func (a *Alert) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert %s (%s, rule %s)\n", a.ID, a.Type, a.RuleCode)
	fmt.Fprintf(&b, "Trader: %s %s (%s), account %s", a.Trader.ID, a.Trader.Name, a.Trader.Department, a.Account.ID)
	if a.Account.CounterpartyID != "" {
		fmt.Fprintf(&b, ", counterparty account %s", a.Account.CounterpartyID)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Trade: %s %.0f %s @ %.2f (value %.2f) on %s\n",
		a.Activity.Side, a.Activity.Quantity, a.Activity.Symbol, a.Activity.Price, a.Activity.TotalValue, a.Activity.TradeDate)
	fmt.Fprintf(&b, "Anomaly score: %.2f, P&L: %.2f\n", a.Anomaly.Score, a.Anomaly.ProfitLoss)
	if a.RelatedEvent.Type != "" {
		fmt.Fprintf(&b, "Related event: %s on %s: %s\n", a.RelatedEvent.Type, a.RelatedEvent.Date, a.RelatedEvent.Description)
	}
	return b.String()
}
