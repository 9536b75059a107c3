// Package decision defines the structured outcome of an alert analysis,
// its validation, persistence, report rendering and audit projection.
package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/audit"
)

// Determination is the final verdict on an alert.
type Determination string

// Determinations.
const (
	Escalate         Determination = "ESCALATE"
	Close            Determination = "CLOSE"
	NeedsHumanReview Determination = "NEEDS_HUMAN_REVIEW"
)

// MinReasoningLength is the minimum length of the reasoning narrative.
const MinReasoningLength = 50

// auditReasoningLength is the narrative length kept in audit entries.
const auditReasoningLength = 200

// Sentinel errors.
var (
	// ErrNoDecision indicates the engine output holds no JSON object.
	ErrNoDecision = errors.New("decision: no JSON object in output")

	// ErrInvalid indicates the decision failed schema validation.
	ErrInvalid = errors.New("decision: invalid")

	// ErrNotFound is returned by stores for unknown alert ids.
	ErrNotFound = errors.New("decision: not found")
)

// Decision is the structured outcome of one analysis.
type Decision struct {
	AlertID                 string         `json:"alert_id"`
	Category                alert.Category `json:"category"`
	Determination           Determination  `json:"determination"`
	GenuineConfidence       int            `json:"genuine_alert_confidence"`
	FalsePositiveConfidence int            `json:"false_positive_confidence"`
	KeyFindings             []string       `json:"key_findings"`
	FavorableIndicators     []string       `json:"favorable_indicators"`
	MitigatingIndicators    []string       `json:"mitigating_indicators"`
	Reasoning               string         `json:"reasoning_narrative"`
	SimilarPrecedent        string         `json:"similar_precedent,omitempty"`
	RecommendedAction       string         `json:"recommended_action"`
	DataGaps                []string       `json:"data_gaps,omitempty"`
	DecidedAt               time.Time      `json:"decided_at"`

	// Fallback marks a decision substituted after a finalization failure.
	Fallback bool `json:"fallback,omitempty"`
}

// Parse extracts a decision from engine output. The output may wrap the JSON
// object in prose or a fenced code block. The object is validated against
// the decision schema before decoding.
func Parse(output string) (Decision, error) {
	raw, err := extractObject(output)
	if err != nil {
		return Decision{}, err
	}
	if err := validateSchema(raw); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var d Decision
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	d.Reasoning = strings.TrimSpace(d.Reasoning)
	return d, d.Validate()
}

// Validate checks the invariants not expressed by the schema.
func (d Decision) Validate() error {
	switch d.Determination {
	case Escalate, Close, NeedsHumanReview:
	default:
		return fmt.Errorf("%w: determination %q", ErrInvalid, d.Determination)
	}
	for name, v := range map[string]int{"genuine_alert_confidence": d.GenuineConfidence, "false_positive_confidence": d.FalsePositiveConfidence} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s %d outside 0-100", ErrInvalid, name, v)
		}
	}
	if utf8.RuneCountInString(d.Reasoning) < MinReasoningLength && !d.Fallback {
		return fmt.Errorf("%w: reasoning narrative shorter than %d characters", ErrInvalid, MinReasoningLength)
	}
	return nil
}

func extractObject(output string) ([]byte, error) {
	s := strings.TrimSpace(output)
	if i := strings.Index(s, "```"); i >= 0 {
		body := s[i+3:]
		body = strings.TrimPrefix(body, "json")
		if j := strings.Index(body, "```"); j >= 0 {
			s = body[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, ErrNoDecision
	}
	raw := []byte(s[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrNoDecision)
	}
	return raw, nil
}

// Fallback builds the decision substituted when finalization fails: the
// alert is routed to a human with the failure recorded in the narrative.
func Fallback(alertID string, category alert.Category, cause error, now time.Time) Decision {
	return Decision{
		AlertID:                 alertID,
		Category:                category,
		Determination:           NeedsHumanReview,
		GenuineConfidence:       0,
		FalsePositiveConfidence: 0,
		KeyFindings:             []string{"Automated analysis could not produce a structured decision."},
		FavorableIndicators:     []string{},
		MitigatingIndicators:    []string{},
		Reasoning:               fmt.Sprintf("Automated analysis failed during finalization and requires manual review. Error: %v", cause),
		RecommendedAction:       "Assign to a compliance analyst for manual investigation.",
		DataGaps:                []string{"structured decision unavailable"},
		DecidedAt:               now.UTC(),
		Fallback:                true,
	}
}

// AuditEntry projects the decision onto the audit trail format.
func (d Decision) AuditEntry() audit.Entry {
	return audit.Entry{
		Timestamp:               d.DecidedAt,
		AlertID:                 d.AlertID,
		Category:                string(d.Category),
		Determination:           string(d.Determination),
		GenuineConfidence:       d.GenuineConfidence,
		FalsePositiveConfidence: d.FalsePositiveConfidence,
		Reasoning:               truncateRunes(d.Reasoning, auditReasoningLength),
		Fallback:                d.Fallback,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
