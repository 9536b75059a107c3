package evidence

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Kind is the accepted shape of a parameter value.
type Kind string

// Parameter kinds.
const (
	KindString Kind = "string"
	KindDate   Kind = "date"
	KindDays   Kind = "integer"
)

// maxDays bounds day-count parameters.
const maxDays = 365

// Param declares one tool argument.
type Param struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
}

// Args are validated tool arguments.
type Args map[string]string

// Date returns the named date argument.
func (a Args) Date(name string) time.Time {
	t, _ := time.Parse(dateLayout, a[name])
	return t
}

// Days returns the named day-count argument or def when absent.
func (a Args) Days(name string, def int) int {
	n, err := strconv.Atoi(a[name])
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// parseArgs decodes and validates raw arguments. The returned message is a
// caller-facing description of the first problem found.
func parseArgs(raw json.RawMessage, params []Param) (Args, string) {
	values := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Sprintf("arguments must be a JSON object: %v", err)
		}
	}

	args := make(Args, len(params))
	for _, p := range params {
		v, ok := values[p.Name]
		s := ""
		if ok && v != nil {
			s = strings.TrimSpace(fmt.Sprint(v))
		}
		if s == "" {
			if p.Required {
				return nil, fmt.Sprintf("missing required field %q", p.Name)
			}
			continue
		}
		switch p.Kind {
		case KindDate:
			if _, err := time.Parse(dateLayout, s); err != nil {
				return nil, fmt.Sprintf("field %q must be a date in YYYY-MM-DD format, got %q", p.Name, s)
			}
		case KindDays:
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > maxDays {
				return nil, fmt.Sprintf("field %q must be a whole number of days between 1 and %d, got %q", p.Name, maxDays, s)
			}
		}
		args[p.Name] = s
	}
	return args, ""
}

// schemaFor renders params as a JSON Schema object.
func schemaFor(params []Param) json.RawMessage {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]any{"description": p.Description}
		switch p.Kind {
		case KindDays:
			prop["type"] = "integer"
			prop["minimum"] = 1
			prop["maximum"] = maxDays
		case KindDate:
			prop["type"] = "string"
			prop["format"] = "date"
		default:
			prop["type"] = "string"
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	return schema
}
