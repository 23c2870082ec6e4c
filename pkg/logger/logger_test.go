package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"vfrelay/pkg/config"
)

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	Component(log, "relay").Info("Relayed event", "event_id", "42", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Relayed event" {
		t.Fatalf("message = %q, want %q", entry.Message, "Relayed event")
	}
	if entry.Component != "relay" {
		t.Fatalf("component = %q, want %q", entry.Component, "relay")
	}
	if entry.Time == "" {
		t.Fatal("expected time")
	}
	if entry.EventID != "42" {
		t.Fatalf("event_id = %q, want %q", entry.EventID, "42")
	}
	if _, ok := entry.Attrs["event_id"]; ok {
		t.Fatal("event_id should not be repeated in attrs")
	}
	if got := entry.Attrs["ok"]; got != true {
		t.Fatalf("attrs.ok = %v, want true", got)
	}
}

func TestLoggerJSONBoundAttrsAndGroups(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "debug"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	scoped := Component(log, "relay").With("channel", "messenger", "session_key", "messenger:1")
	scoped.Warn("First", "error", errors.New("boom"))
	scoped.WithGroup("send").Debug("Second", "attempt", 2, "event_id", "nested")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), out.String())
	}

	var first, second LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}

	for _, entry := range []LogEntry{first, second} {
		if entry.Component != "relay" || entry.Channel != "messenger" || entry.SessionKey != "messenger:1" {
			t.Fatalf("entry = %+v, want bound relay fields", entry)
		}
	}
	if got := first.Attrs["error"]; got != "boom" {
		t.Fatalf("attrs.error = %v, want %q", got, "boom")
	}
	if _, ok := first.Attrs["send.attempt"]; ok {
		t.Fatal("group attrs leaked into parent logger")
	}
	if got := second.Attrs["send.attempt"]; got != float64(2) {
		t.Fatalf("attrs[send.attempt] = %v, want 2", got)
	}
	if second.EventID != "" || second.Attrs["send.event_id"] != "nested" {
		t.Fatalf("grouped event_id = %q / %v, want kept in attrs", second.EventID, second.Attrs["send.event_id"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range tests {
		got, err := parseLevel(input)
		if err != nil || got != want {
			t.Fatalf("parseLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerEnvironmentOverrides(t *testing.T) {
	t.Setenv(envLevel, "debug")
	t.Setenv(envFormat, "text")
	defer unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Debug("Debug enabled", "component", "test")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected debug output with env override")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format override, got %q", line)
	}
}

func TestLoggerDefaultsToTextFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Default format")
	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.HasPrefix(line, "{") {
		t.Fatalf("expected text format by default, got %q", line)
	}
}

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	_ = os.Unsetenv(envLevel)
	_ = os.Unsetenv(envFormat)
	_ = os.Unsetenv(envAddSource)
}

func TestLoggerRejectsUnknownFormat(t *testing.T) {
	unsetLoggingEnv(t)

	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
	if _, err := newWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unsupported level")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview(" hello "); got != "hello" {
		t.Fatalf("Preview short = %q, want %q", got, "hello")
	}

	got := Preview(strings.Repeat("a", PreviewLimit+20))
	if len(got) != PreviewLimit+3 {
		t.Fatalf("Preview long len = %d, want %d", len(got), PreviewLimit+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("Preview long = %q, want ellipsis suffix", got)
	}
}
