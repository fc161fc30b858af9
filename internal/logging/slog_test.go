package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "cache miss", "key", "blocked:abc")
	log.Info(ctx, "http server starting", "addr", ":8080")
	log.Warn(ctx, "media pool saturated", "object_key", "uploads/a")
	log.Error(ctx, "sweep failed", "record_id", "f1")

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		attr  string
	}{
		{"DEBUG", "cache miss", "key=blocked:abc"},
		{"INFO", "http server starting", "addr=:8080"},
		{"WARN", "media pool saturated", "object_key=uploads/a"},
		{"ERROR", "sweep failed", "record_id=f1"},
	}

	for _, tc := range tests {
		if !strings.Contains(out, "level="+tc.level) {
			t.Fatalf("expected line with level=%s in output:\n%s", tc.level, out)
		}
		if !strings.Contains(out, "msg="+strconvQuoteIfNeeded(tc.msg)) {
			t.Fatalf("expected line with msg=%q in output:\n%s", tc.msg, out)
		}
		if !strings.Contains(out, tc.attr) {
			t.Fatalf("expected attribute %s in output:\n%s", tc.attr, out)
		}
	}
}

// slog's text handler quotes values containing spaces.
func strconvQuoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)

	child := log.With("component", "gate", "credential_id", "c1")
	child.Info(context.Background(), "blocked", "score", 6)

	out := buf.String()
	for _, s := range []string{"level=INFO", "msg=blocked", "component=gate", "credential_id=c1", "score=6"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}
