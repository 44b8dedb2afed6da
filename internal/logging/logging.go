package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	logger       hclog.Logger
	initOnce     sync.Once
	mu           sync.RWMutex
)

// ParseLevel converts a level name into a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelFromEnv() LogLevel {
	if debug := os.Getenv("DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "1", "true", "yes", "on":
			return LevelDebug
		}
	}
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

func (l LogLevel) hclogLevel() hclog.Level {
	switch l {
	case LevelDebug:
		return hclog.Debug
	case LevelWarn:
		return hclog.Warn
	case LevelError:
		return hclog.Error
	default:
		return hclog.Info
	}
}

func newLogger(level LogLevel, out io.Writer, json bool) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            "ffmpeg-api",
		Level:           level.hclogLevel(),
		Output:          out,
		JSONFormat:      json,
		IncludeLocation: false,
		TimeFormat:      "2006-01-02 15:04:05",
	})
}

func ensure() hclog.Logger {
	initOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger != nil {
			return
		}
		currentLevel = levelFromEnv()
		logger = newLogger(currentLevel, os.Stderr, strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"))
	})
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetOutput replaces the destination and level of the package logger.
// Tests use it to capture output.
func SetOutput(out io.Writer, level LogLevel, json bool) {
	initOnce.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	logger = newLogger(level, out, json)
}

// Named returns an hclog sub-logger for components that prefer structured
// key/value logging.
func Named(name string) hclog.Logger {
	return ensure().Named(name)
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	ensure()
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	ensure().Debug(fmt.Sprintf(format, args...))
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	ensure().Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	ensure().Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	ensure().Error(fmt.Sprintf(format, args...))
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	ensure().Error(fmt.Sprintf("FATAL: "+format, args...))
	os.Exit(1)
}

// Printf writes a message that should always print, regardless of level.
func Printf(format string, args ...interface{}) {
	l := ensure()
	msg := fmt.Sprintf(format, args...)
	if l.GetLevel() > hclog.Info {
		l.Log(l.GetLevel(), msg)
		return
	}
	l.Info(msg)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
