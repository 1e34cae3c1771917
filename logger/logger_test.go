package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  LogLevel
	}{
		{"error", ERROR},
		{"WARN", WARN},
		{"warning", WARN},
		{"info", INFO},
		{"debug", DEBUG},
		{"trace", TRACE},
		{"  Trace  ", TRACE},
		{"bogus", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	l := New(WARN, "", 16)
	l.SetConsoleOutput(false)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Debug("d")

	entries := l.RecentEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", len(entries))
	}
	if entries[0].Message != "e" || entries[1].Message != "w" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestBufferIsCircular(t *testing.T) {
	t.Parallel()

	l := New(INFO, "", 3)
	l.SetConsoleOutput(false)

	l.Info("one")
	l.Info("two")
	l.Info("three")
	l.Info("four")

	entries := l.RecentEntries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 buffered entries, got %d", len(entries))
	}
	if entries[0].Message != "two" || entries[2].Message != "four" {
		t.Errorf("oldest entry not evicted: %+v", entries)
	}
}

func TestFormatLogEntry(t *testing.T) {
	t.Parallel()

	entry := LogEntry{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:     WARN,
		Message:   "queue replay failed",
		Context: map[string]interface{}{
			"client_id": "dev-1",
			"attempt":   3,
		},
	}

	line := formatLogEntry(entry)
	if !strings.Contains(line, "[WARN] queue replay failed") {
		t.Errorf("missing level/message in %q", line)
	}
	// Context keys are sorted for stable output
	if !strings.Contains(line, "attempt=3 client_id=dev-1") {
		t.Errorf("context not rendered in sorted order: %q", line)
	}
}

func TestContextParsing(t *testing.T) {
	t.Parallel()

	l := New(INFO, "", 4)
	l.SetConsoleOutput(false)

	l.Info("msg", "key", "value", "count", 7)

	entries := l.RecentEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].Context
	if ctx["key"] != "value" || ctx["count"] != 7 {
		t.Errorf("unexpected context: %+v", ctx)
	}
}

func TestFileOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := New(INFO, dir, 4)
	l.SetConsoleOutput(false)

	l.Info("persisted line", "k", "v")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "persisted line") {
		t.Errorf("log file missing entry: %q", data)
	}
}
