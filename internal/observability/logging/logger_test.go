package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewJSONLoggerEmitsServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLoggerTo(&buf, "dealer-rag-api", "info")
	log.Info("startup", "port", "8080")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if record["service"] != "dealer-rag-api" {
		t.Fatalf("expected service attribute, got %v", record["service"])
	}
	if record["msg"] != "startup" || record["port"] != "8080" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewJSONLoggerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLoggerTo(&buf, "svc", "error")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed at error level, got %s", buf.String())
	}
	log.Error("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected error record emitted")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"  WARN ": slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("%q: expected %v, got %v", input, want, got)
		}
	}
}
