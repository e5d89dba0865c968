package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[LogLevel]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

var (
	currentLevel atomic.Int32
	envOnce      sync.Once
)

// ParseLevel parses a level name case-insensitively. "warning" is accepted
// as an alias for warn.
func ParseLevel(s string) (LogLevel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn, true
	}
	for level, name := range levelNames {
		if name == s {
			return level, true
		}
	}
	return LevelInfo, false
}

// levelFromEnv reads DEBUG first, then LOG_LEVEL. Anything unrecognized
// falls back to info.
func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	level, _ := ParseLevel(os.Getenv("LOG_LEVEL"))
	return level
}

func loadEnv() {
	envOnce.Do(func() {
		currentLevel.Store(int32(levelFromEnv()))
	})
}

// SetLevel overrides the environment level, e.g. from a command-line flag.
func SetLevel(level LogLevel) {
	envOnce.Do(func() {})
	currentLevel.Store(int32(level))
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	loadEnv()
	return LogLevel(currentLevel.Load())
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logf(level LogLevel, tag, format string, args ...interface{}) {
	if GetLevel() <= level {
		log.Printf("["+tag+"] "+format, args...)
	}
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) { logf(LevelDebug, "DEBUG", format, args...) }

// Info logs an info message
func Info(format string, args ...interface{}) { logf(LevelInfo, "INFO", format, args...) }

// Warn logs a warning message
func Warn(format string, args ...interface{}) { logf(LevelWarn, "WARN", format, args...) }

// Error logs an error message
func Error(format string, args ...interface{}) { logf(LevelError, "ERROR", format, args...) }

// Logger writes leveled messages prefixed with a component name, in the
// form "<component> - <message>". A nil Logger logs without a prefix.
type Logger struct {
	component string
}

// For returns a Logger for the named component.
func For(component string) *Logger {
	return &Logger{component: component}
}

// Component returns the logger's component name.
func (l *Logger) Component() string {
	if l == nil {
		return ""
	}
	return l.component
}

func (l *Logger) prefix(format string) string {
	if l == nil || l.component == "" {
		return format
	}
	return l.component + " - " + format
}

func (l *Logger) Debug(format string, args ...interface{}) { Debug(l.prefix(format), args...) }
func (l *Logger) Info(format string, args ...interface{})  { Info(l.prefix(format), args...) }
func (l *Logger) Warn(format string, args ...interface{})  { Warn(l.prefix(format), args...) }
func (l *Logger) Error(format string, args ...interface{}) { Error(l.prefix(format), args...) }

// Progress logs one step of a queue as "Task <i>/<n> <message>", where i is
// zero based.
func (l *Logger) Progress(i, n int, format string, args ...interface{}) {
	l.Info(fmt.Sprintf("Task %d/%d ", i+1, n)+format, args...)
}

// ProgressError is Progress at error level.
func (l *Logger) ProgressError(i, n int, format string, args ...interface{}) {
	l.Error(fmt.Sprintf("Task %d/%d ", i+1, n)+format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", l)
}
