package anthropic

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/surveil/internal/engine"
)

// errSystemPlacement rejects system messages after the conversation has
// started: the Messages API carries the system prompt out of band.
var errSystemPlacement = errors.New("engine.anthropic: system messages must precede the conversation")

// newParams builds the Messages API request for an engine request. Request
// level MaxTokens and Temperature override the module configuration.
func newParams(req engine.Request, cfg Config) (sdk.MessageNewParams, error) {
	params := sdk.MessageNewParams{
		Model:       sdk.Model(cfg.Model),
		MaxTokens:   int64(cmp.Or(req.MaxTokens, cfg.MaxTokens)),
		Temperature: sdk.Float(cfg.Temperature),
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	var t turns
	for i, m := range req.Messages {
		switch m.Role {
		case engine.RoleSystem:
			if len(t.out) > 0 {
				return sdk.MessageNewParams{}, fmt.Errorf("%w (message %d)", errSystemPlacement, i)
			}
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case engine.RoleUser:
			t.add(sdk.MessageParamRoleUser, textBlock(m.Content)...)
		case engine.RoleTool:
			t.add(sdk.MessageParamRoleUser, sdk.NewToolResultBlock(m.ToolID, m.Content, m.IsError))
		case engine.RoleAssistant:
			blocks := textBlock(m.Content)
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, toolInput(tc.Arguments), tc.Name))
			}
			t.add(sdk.MessageParamRoleAssistant, blocks...)
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("engine.anthropic: message %d has unknown role %q", i, m.Role)
		}
	}
	params.Messages = t.out

	for _, def := range req.Tools {
		tool, err := toolParam(def)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = append(params.Tools, tool)
	}
	return params, nil
}

// turns folds engine messages into alternating Messages API turns. Tool
// results belong to the user side, so the results of one round and the
// prompt that follows them share a turn.
type turns struct {
	out []sdk.MessageParam
}

func (t *turns) add(role sdk.MessageParamRole, blocks ...sdk.ContentBlockParamUnion) {
	if len(blocks) == 0 {
		return
	}
	if n := len(t.out); n > 0 && t.out[n-1].Role == role {
		t.out[n-1].Content = append(t.out[n-1].Content, blocks...)
		return
	}
	t.out = append(t.out, sdk.MessageParam{Role: role, Content: blocks})
}

func textBlock(s string) []sdk.ContentBlockParamUnion {
	if s == "" {
		return nil
	}
	return []sdk.ContentBlockParamUnion{sdk.NewTextBlock(s)}
}

// toolInput passes recorded arguments through unchanged; a call without
// arguments is sent as an empty object.
func toolInput(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	return args
}

// toolParam converts an evidence tool definition. Only the object
// properties and the required list are carried over.
func toolParam(def engine.ToolDefinition) (sdk.ToolUnionParam, error) {
	tool := &sdk.ToolParam{Name: def.Name}
	if def.Description != "" {
		tool.Description = sdk.String(def.Description)
	}
	if len(def.Parameters) > 0 {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			return sdk.ToolUnionParam{}, fmt.Errorf("engine.anthropic: tool %s schema: %w", def.Name, err)
		}
		tool.InputSchema = sdk.ToolInputSchemaParam{Properties: schema.Properties, Required: schema.Required}
	}
	return sdk.ToolUnionParam{OfTool: tool}, nil
}
