//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"gym-payments/internal/config"
)

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, config.LogConfig{Level: "info", Format: "json"}, false)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "user-1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if line["trace_id"] != "trace-1" || line["user_id"] != "user-1" || line["service"] != "gym-payments" {
		t.Fatalf("unexpected fields %v", line)
	}
}

func TestNew_LevelFallback(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, config.LogConfig{Level: "chatty", Format: "json"}, false)
	l.Debug().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug written at fallback level: %s", buf.String())
	}
	l.Info().Msg("kept")
	if buf.Len() == 0 {
		t.Fatal("info dropped at fallback level")
	}
}

func TestNew_SamplingKeepsWarnings(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, config.LogConfig{Level: "info", Format: "json", Sampling: true}, false)
	for i := 0; i < 500; i++ {
		l.Warn().Msg("w")
	}
	if n := bytes.Count(buf.Bytes(), []byte("\n")); n != 500 {
		t.Fatalf("expected every warning written, got %d", n)
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("owner@irontemple.test", false); got != "owne...st" {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("Redact(short) = %q", got)
	}
	if got := Redact("owner@irontemple.test", true); got != "owner@irontemple.test" {
		t.Errorf("dev Redact = %q", got)
	}
	if TraceID(context.Background()) != "" || UserID(context.Background()) != "" {
		t.Error("empty context must yield empty ids")
	}
}
