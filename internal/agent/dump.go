package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/surveil/internal/alert"
	"github.com/flemzord/surveil/internal/decision"
	"github.com/flemzord/surveil/internal/engine"
)

// DebugDump is written when the loop cannot produce a structured decision.
type DebugDump struct {
	AlertID   string           `json:"alert_id"`
	Category  alert.Category   `json:"category"`
	Reason    string           `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
	Messages  []engine.Message `json:"messages"`
}

// writeDump stores d under dir and returns the file path.
func writeDump(dir string, d DebugDump) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("agent: debug dump: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("agent: debug dump: %w", err)
	}
	name := fmt.Sprintf("%s_%s.json", decision.SafeName(d.AlertID), d.Timestamp.UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("agent: debug dump: %w", err)
	}
	return path, nil
}

// lastMessages returns at most n trailing messages.
func lastMessages(msgs []engine.Message, n int) []engine.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
