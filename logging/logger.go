package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents logging levels
type LogLevel string

const (
	// LogLevelDebug enables all logs
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo enables info, warn, and error logs
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn enables warn and error logs
	LogLevelWarn LogLevel = "warn"
	// LogLevelError enables only error logs
	LogLevelError LogLevel = "error"
)

// Logger is the bot's logging handle. It is built once at startup and passed
// to every component.
type Logger struct {
	*slog.Logger
}

func (l LogLevel) slogLevel() slog.Level {
	switch LogLevel(strings.ToLower(string(l))) {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a JSON logger with the specified level and output.
// Unknown levels fall back to info.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithComponent tags every record with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// WithFields adds structured fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if len(fields) == 0 {
		return l
	}

	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}

	return &Logger{
		Logger: l.Logger.With(attrs...),
	}
}

// Default returns a default logger with info level directed to stdout
func Default() *Logger {
	return NewLogger(LogLevelInfo, os.Stdout)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewLogger(LogLevelError, io.Discard)
}
