package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Config holds logger configuration
type Config struct {
	Level        string // debug, info, warn, error
	Format       string // json, console
	Output       string // stdout, stderr, or file path
	EnableSource bool   // Enable source code location
	TimeFormat   string // Time format for console output

	writer io.Writer // overrides Output in tests
}

// Logger wraps slog.Logger and owns the log file, if any
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a new logger instance
func New(config *Config) (*Logger, error) {
	level := parseLevel(config.Level)

	writer, closer, err := openWriter(config)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.EnableSource,
	}

	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	case "console", "":
		timeFormat := config.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}

		handler = tint.NewHandler(writer, &tint.Options{
			Level:      level,
			AddSource:  config.EnableSource,
			TimeFormat: timeFormat,
			NoColor:    config.writer != nil,
		})
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	return &Logger{Logger: slog.New(handler), closer: closer}, nil
}

// openWriter resolves the output target. The returned closer is nil for the standard streams.
func openWriter(config *Config) (io.Writer, io.Closer, error) {
	if config.writer != nil {
		return config.writer, nil, nil
	}

	switch config.Output {
	case "stderr":
		return os.Stderr, nil, nil
	case "stdout", "":
		return os.Stdout, nil, nil
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return f, f, nil
	}
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a logger that tags every record with the subsystem name
func (l *Logger) Component(name string) *slog.Logger {
	return l.Logger.With(slog.String("component", name))
}

// Close releases the log file when logging to one
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
