package anthropic

import (
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/surveil/internal/engine"
)

var finishReasons = map[sdk.StopReason]engine.FinishReason{
	sdk.StopReasonEndTurn:      engine.FinishReasonStop,
	sdk.StopReasonStopSequence: engine.FinishReasonStop,
	sdk.StopReasonMaxTokens:    engine.FinishReasonLength,
	sdk.StopReasonToolUse:      engine.FinishReasonToolUse,
	sdk.StopReasonRefusal:      engine.FinishReasonFiltering,
}

// toResponse reads a complete or accumulated message. Blocks are read
// through their union fields so messages rebuilt from stream events convert
// the same way as synchronous ones.
func toResponse(msg *sdk.Message) engine.Response {
	var (
		text []string
		resp engine.Response
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, engine.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: toolArguments(block.Input),
			})
		}
	}
	resp.Content = strings.Join(text, "\n")

	resp.FinishReason = engine.FinishReasonStop
	if r, ok := finishReasons[msg.StopReason]; ok {
		resp.FinishReason = r
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	resp.Usage = engine.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}
	return resp
}

// toolArguments normalizes a tool_use input to a JSON object. Missing or
// unreadable input becomes an empty object, which the evidence tool then
// reports back as missing fields.
func toolArguments(input any) json.RawMessage {
	raw, err := json.Marshal(input)
	if err != nil || len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
