package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is the JSON Schema the engine's final answer must satisfy. It is
// also embedded in the finalization prompt.
const Schema = `{
  "type": "object",
  "required": ["determination", "genuine_alert_confidence", "false_positive_confidence",
               "key_findings", "favorable_indicators", "mitigating_indicators",
               "reasoning_narrative", "recommended_action"],
  "properties": {
    "determination": {"enum": ["ESCALATE", "CLOSE", "NEEDS_HUMAN_REVIEW"]},
    "genuine_alert_confidence": {"type": "integer", "minimum": 0, "maximum": 100},
    "false_positive_confidence": {"type": "integer", "minimum": 0, "maximum": 100},
    "key_findings": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "favorable_indicators": {"type": "array", "items": {"type": "string"}},
    "mitigating_indicators": {"type": "array", "items": {"type": "string"}},
    "reasoning_narrative": {"type": "string", "minLength": 50},
    "similar_precedent": {"type": "string"},
    "recommended_action": {"type": "string", "minLength": 1},
    "data_gaps": {"type": "array", "items": {"type": "string"}}
  }
}`

const schemaURL = "mem://decision.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(Schema), &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

func validateSchema(raw []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile decision schema: %w", err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(v)
}
