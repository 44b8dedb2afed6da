package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"trace", LevelDebug},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"nonsense", LevelInfo},
		{"  error  ", LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogLevelConstants(t *testing.T) {
	levels := []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 0; i < len(levels)-1; i++ {
		if levels[i] >= levels[i+1] {
			t.Errorf("Log levels should be in ascending order: %v >= %v", levels[i], levels[i+1])
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelWarn, false)

	Debug("debug message")
	Info("info message")
	Warn("warn message %d", 1)
	Error("error message %s", "two")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn should be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "warn message 1") {
		t.Errorf("expected warn message in output, got:\n%s", out)
	}
	if !strings.Contains(out, "error message two") {
		t.Errorf("expected error message in output, got:\n%s", out)
	}
	if GetLevel() != LevelWarn {
		t.Errorf("GetLevel() = %v, want warn", GetLevel())
	}
	if IsDebugEnabled() {
		t.Error("IsDebugEnabled() should be false at warn level")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelInfo, true)

	Info("job %s finished", "abc")

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", line, err)
	}
	if entry["@message"] != "job abc finished" {
		t.Errorf("@message = %v, want %q", entry["@message"], "job abc finished")
	}
}

func TestPrintfAlwaysPrints(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelError, false)

	Printf("banner %s", "line")

	if !strings.Contains(buf.String(), "banner line") {
		t.Errorf("Printf output missing, got %q", buf.String())
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, LevelDebug, false)

	Named("worker").Info("claimed", "job", "j1")

	out := buf.String()
	if !strings.Contains(out, "worker") || !strings.Contains(out, "job=j1") {
		t.Errorf("named logger output = %q", out)
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{LogLevel(99), "unknown(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("LogLevel.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
