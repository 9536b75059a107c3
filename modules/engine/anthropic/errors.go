package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/flemzord/surveil/internal/engine"
)

// statusOverloaded is the Messages API's "overloaded" status.
const statusOverloaded = 529

var statusErrors = map[int]error{
	http.StatusTooManyRequests:     engine.ErrRateLimit,
	http.StatusInternalServerError: engine.ErrEngineDown,
	http.StatusBadGateway:          engine.ErrEngineDown,
	http.StatusServiceUnavailable:  engine.ErrEngineDown,
	http.StatusGatewayTimeout:      engine.ErrEngineDown,
	statusOverloaded:               engine.ErrEngineDown,
}

// contextLengthHints are fragments of the 400 message sent when a prompt
// does not fit the model's context window.
var contextLengthHints = []string{"prompt is too long", "context window", "context length", "too many tokens"}

// classify maps a Messages API failure onto the engine sentinels the loop
// and the task runner understand. Cancellation passes through; transport
// failures count as the engine being down.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", engine.ErrEngineDown, err)
	}
	if sentinel, ok := statusErrors[apiErr.StatusCode]; ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	if apiErr.StatusCode == http.StatusBadRequest && mentionsContextLength(apiErr.RawJSON()) {
		return fmt.Errorf("%w: %w", engine.ErrContextLength, err)
	}
	return fmt.Errorf("engine.anthropic: HTTP %d: %w", apiErr.StatusCode, err)
}

func mentionsContextLength(raw string) bool {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := raw
	if json.Unmarshal([]byte(raw), &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	msg = strings.ToLower(msg)
	for _, hint := range contextLengthHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
