package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Format selects the slog handler
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures the log sink
type Options struct {
	Level  LogLevel
	Format Format
	// Dir receives a dated log file next to console output; empty disables the file
	Dir     string
	Console io.Writer
}

// Logger wraps slog.Logger with component context
type Logger struct {
	*slog.Logger
	component string
}

// NewLogger creates a structured logger writing to w
func NewLogger(component string, level LogLevel, format Format, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(level)}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger:    slog.New(handler),
		component: component,
	}
}

// Discard returns a logger that drops everything, for tests and dry wiring
func Discard() *Logger {
	return NewLogger("discard", LogLevelError, FormatText, io.Discard)
}

// Open creates the process logger from options and returns a close function for the file sink
func Open(component string, opts Options) (*Logger, func() error, error) {
	if opts.Level == "" {
		opts.Level = LogLevelInfo
	}
	level, err := ParseLevel(string(opts.Level))
	if err != nil {
		return nil, nil, err
	}
	opts.Level = level

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	if opts.Dir == "" {
		return NewLogger(component, opts.Level, opts.Format, console), func() error { return nil }, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := FilePath(opts.Dir, time.Now())
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := NewLogger(component, opts.Level, opts.Format, io.MultiWriter(console, file))
	return logger, file.Close, nil
}

// FilePath returns the dated log file path for the given day
func FilePath(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("wishful_%s.log", day.Format("2006-01-02")))
}

// ParseLevel validates a level name
func ParseLevel(level string) (LogLevel, error) {
	switch LogLevel(level) {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return LogLevel(level), nil
	default:
		return "", fmt.Errorf("unknown log level %q", level)
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
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

// WithComponent creates a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger,
		component: component,
	}
}

// WithAccount creates a logger that tags every record with the account name
func (l *Logger) WithAccount(name string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("account", name),
		component: l.component,
	}
}

// WithRun creates a logger that tags every record with the run ID
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("run_id", runID),
		component: l.component,
	}
}

// Debug logs a debug message with component context
func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, append([]any{"component", l.component}, args...)...)
}

// Info logs an info message with component context
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, append([]any{"component", l.component}, args...)...)
}

// Warn logs a warning message with component context
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, append([]any{"component", l.component}, args...)...)
}

// Error logs an error message with component context
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, append([]any{"component", l.component}, args...)...)
}

// LogError logs error events with context
func (l *Logger) LogError(operation string, err error, context ...any) {
	args := append([]any{"operation", operation, "error", err.Error()}, context...)
	l.Error("operation failed", args...)
}
