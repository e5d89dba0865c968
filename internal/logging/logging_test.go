package logging

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

// captureLog redirects the standard logger for the duration of a test and
// restores the level afterwards.
func captureLog(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := GetLevel()
	log.SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		SetLevel(prev)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input  string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"info", LevelInfo, true},
		{"warn", LevelWarn, true},
		{"warning", LevelWarn, true},
		{"error", LevelError, true},
		{"DEBUG", LevelDebug, true},
		{" Warn ", LevelWarn, true},
		{"", LevelInfo, false},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		debug    string
		logLevel string
		want     LogLevel
	}{
		{"DEBUG wins over LOG_LEVEL", "true", "error", LevelDebug},
		{"DEBUG=0 defers to LOG_LEVEL", "0", "warn", LevelWarn},
		{"LOG_LEVEL only", "", "error", LevelError},
		{"nothing set", "", "", LevelInfo},
		{"unknown LOG_LEVEL", "", "loud", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DEBUG", tt.debug)
			t.Setenv("LOG_LEVEL", tt.logLevel)
			if got := levelFromEnv(); got != tt.want {
				t.Errorf("levelFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetLevelFiltersMessages(t *testing.T) {
	buf := captureLog(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown %s", "warn")
	Error("shown %s", "error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn were written: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown warn") || !strings.Contains(out, "[ERROR] shown error") {
		t.Errorf("unexpected log output: %q", out)
	}
	if IsDebugEnabled() {
		t.Error("IsDebugEnabled() = true at warn level")
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

func TestComponentLoggerPrefix(t *testing.T) {
	buf := captureLog(t, LevelInfo)

	l := For("IntroFingerprintExtract")
	if l.Component() != "IntroFingerprintExtract" {
		t.Fatalf("Component() = %q", l.Component())
	}
	l.Error("Number of items: %d", 3)

	if !strings.Contains(buf.String(), "[ERROR] IntroFingerprintExtract - Number of items: 3") {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestNilComponentLogger(t *testing.T) {
	buf := captureLog(t, LevelInfo)

	var l *Logger
	l.Error("plain %s", "message")

	if l.Component() != "" {
		t.Errorf("Component() on nil = %q", l.Component())
	}
	if !strings.Contains(buf.String(), "[ERROR] plain message") {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestProgress(t *testing.T) {
	buf := captureLog(t, LevelInfo)

	l := For("IntroSkipClear")
	l.Progress(0, 2, "- %s", "/tv/Show/S01E01.mkv")
	l.ProgressError(1, 2, "failed - %s", "/tv/Show/S01E02.mkv")

	out := buf.String()
	for _, want := range []string{
		"[INFO] IntroSkipClear - Task 1/2 - /tv/Show/S01E01.mkv",
		"[ERROR] IntroSkipClear - Task 2/2 failed - /tv/Show/S01E02.mkv",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
