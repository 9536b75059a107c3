package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, literals ...string) *slog.Logger {
	r := NewRedactor()
	for _, l := range literals {
		r.AddLiteral(l)
	}
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewRedactingHandler(inner, r))
}

func TestRedactingHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
		log    func(*slog.Logger)
	}{
		{
			name:   "message",
			secret: "sk-ant-REDACTED",
			log:    func(l *slog.Logger) { l.Info("key is sk-ant-REDACTED") },
		},
		{
			name:   "attribute",
			secret: "gateway-token-42",
			log:    func(l *slog.Logger) { l.Info("auth", "token", "gateway-token-42") },
		},
		{
			name:   "with attrs",
			secret: "gateway-token-42",
			log:    func(l *slog.Logger) { l.With("token", "gateway-token-42").Info("request") },
		},
		{
			name:   "group",
			secret: "gateway-token-42",
			log: func(l *slog.Logger) {
				l.WithGroup("auth").Info("attempt", slog.Group("header", slog.String("value", "gateway-token-42")))
			},
		},
		{
			name:   "error value",
			secret: "gateway-token-42",
			log:    func(l *slog.Logger) { l.Warn("forward failed", "error", errors.New("401 for gateway-token-42")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			tt.log(newTestLogger(&buf, "gateway-token-42"))
			out := buf.String()
			if strings.Contains(out, tt.secret) {
				t.Errorf("secret leaked: %s", out)
			}
			if !strings.Contains(out, RedactPlaceholder) {
				t.Errorf("placeholder missing: %s", out)
			}
		})
	}
}

func TestRedactingHandler_PassesThrough(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	newTestLogger(&buf).Info("analysis complete", "alert_id", "ALT-1001", "iterations", 4)

	out := buf.String()
	if strings.Contains(out, RedactPlaceholder) {
		t.Errorf("unexpected redaction: %s", out)
	}
	if !strings.Contains(out, "alert_id=ALT-1001") || !strings.Contains(out, "iterations=4") {
		t.Errorf("attributes missing: %s", out)
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	inner := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewRedactingHandler(inner, NewRedactor())
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled at warn level")
	}
}
