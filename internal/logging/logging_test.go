package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONWithRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := WithRun(New(&buf, "info", "json"), "run-1", "enrich")
	l.Debug("hidden")
	l.Info("business enriched", "status", "Success")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected debug to be filtered, got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["run_id"] != "run-1" || rec["command"] != "enrich" || rec["status"] != "Success" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNew_TextDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(&buf, "debug", "").Debug("fetch", "url", "https://acme.test")
	if !strings.Contains(buf.String(), "level=DEBUG") || !strings.Contains(buf.String(), "url=https://acme.test") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}
