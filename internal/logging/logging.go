package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var prefixes = map[Level]string{
	LevelDebug: "[DEBUG] ",
	LevelInfo:  "[INFO] ",
	LevelWarn:  "[WARN] ",
	LevelError: "[ERROR] ",
}

var (
	level     Level
	levelOnce sync.Once
)

// parseLevel maps a LOG_LEVEL value onto a Level, defaulting to info.
func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// GetLevel returns the process log level, resolving it from the environment
// on first call.
func GetLevel() Level {
	levelOnce.Do(func() {
		switch strings.ToLower(os.Getenv("DEBUG")) {
		case "1", "true", "yes", "on":
			level = LevelDebug
			return
		}
		level = parseLevel(os.Getenv("LOG_LEVEL"))
	})
	return level
}

func logf(at Level, format string, args []interface{}) {
	if GetLevel() > at {
		return
	}
	log.Printf(prefixes[at]+format, args...)
}

// Debug logs a debug message (only with DEBUG=true or LOG_LEVEL=debug).
func Debug(format string, args ...interface{}) { logf(LevelDebug, format, args) }

// Info logs an info message.
func Info(format string, args ...interface{}) { logf(LevelInfo, format, args) }

// Warn logs a warning message.
func Warn(format string, args ...interface{}) { logf(LevelWarn, format, args) }

// Error logs an error message.
func Error(format string, args ...interface{}) { logf(LevelError, format, args) }

// Fatal logs an error message and exits.
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// String returns the string representation of a log level.
func (l Level) String() string {
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
