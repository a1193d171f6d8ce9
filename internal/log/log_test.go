package log

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":  LevelDebug,
		" ERROR": LevelError,
		"info":   LevelInfo,
		"":       LevelInfo,
		"trace":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestKeyValueFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Replace(zap.New(core))

	Info("range loaded", "count", 3, "range", "2025-01", "dangling")
	Error("fetch failed", errors.New("boom"), "status", 502)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx["count"] != int64(3) {
		t.Errorf("count = %v, want 3", ctx["count"])
	}
	if _, ok := ctx["dangling"]; ok {
		t.Error("dangling key should be dropped")
	}

	errCtx := entries[1].ContextMap()
	if errCtx["error"] != "boom" {
		t.Errorf("error = %v, want boom", errCtx["error"])
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("level = %v, want error", entries[1].Level)
	}
}
