package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Fields carries structured key/value pairs into a log entry.
type Fields map[string]any

// Logger is the leveled, structured logger used throughout the application.
type Logger interface {
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Warn(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields Fields) Logger
}

// LoggerConfig controls the stdout logger.
type LoggerConfig struct {
	Writer io.Writer
	Level  slog.Leveler
	JSON   bool
	// NoColor disables tint colouring for text output.
	NoColor bool
}

type slogLogger struct {
	logger *slog.Logger
}

// NewLogger creates an info-level, coloured logger writing to stdout.
func NewLogger() Logger {
	return NewLoggerWithConfig(LoggerConfig{})
}

// NewLoggerWithConfig creates a stdout logger backed by log/slog. Text output
// goes through tint; JSON output uses the standard JSON handler.
func NewLoggerWithConfig(cfg LoggerConfig) Logger {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Level == nil {
		cfg.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{Level: cfg.Level})
	} else {
		handler = tint.NewHandler(cfg.Writer, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: "2006-01-02 15:04:05",
			NoColor:    cfg.NoColor,
		})
	}
	return &slogLogger{logger: slog.New(handler)}
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels,
// defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toAttrs(fields Fields) []any {
	attrs := make([]any, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *slogLogger) Debug(msg string, fields Fields) { l.logger.Debug(msg, toAttrs(fields)...) }
func (l *slogLogger) Info(msg string, fields Fields)  { l.logger.Info(msg, toAttrs(fields)...) }
func (l *slogLogger) Warn(msg string, fields Fields)  { l.logger.Warn(msg, toAttrs(fields)...) }

func (l *slogLogger) Error(msg string, err error, fields Fields) {
	attrs := toAttrs(fields)
	if err != nil {
		attrs = append(attrs, tint.Err(err))
	}
	l.logger.Error(msg, attrs...)
}

func (l *slogLogger) WithFields(fields Fields) Logger {
	return &slogLogger{logger: l.logger.With(toAttrs(fields)...)}
}

type multiLogger struct {
	loggers []Logger
}

// NewMultiLogger fans every entry out to all loggers.
func NewMultiLogger(loggers ...Logger) Logger {
	if len(loggers) == 1 {
		return loggers[0]
	}
	return &multiLogger{loggers: loggers}
}

func (m *multiLogger) Debug(msg string, fields Fields) {
	for _, l := range m.loggers {
		l.Debug(msg, fields)
	}
}

func (m *multiLogger) Info(msg string, fields Fields) {
	for _, l := range m.loggers {
		l.Info(msg, fields)
	}
}

func (m *multiLogger) Warn(msg string, fields Fields) {
	for _, l := range m.loggers {
		l.Warn(msg, fields)
	}
}

func (m *multiLogger) Error(msg string, err error, fields Fields) {
	for _, l := range m.loggers {
		l.Error(msg, err, fields)
	}
}

func (m *multiLogger) WithFields(fields Fields) Logger {
	enriched := make([]Logger, 0, len(m.loggers))
	for _, l := range m.loggers {
		enriched = append(enriched, l.WithFields(fields))
	}
	return &multiLogger{loggers: enriched}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields)        {}
func (NopLogger) Info(string, Fields)         {}
func (NopLogger) Warn(string, Fields)         {}
func (NopLogger) Error(string, error, Fields) {}
func (n NopLogger) WithFields(Fields) Logger  { return n }
