package utils

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// FluentConfig describes the Fluent Bit forward endpoint.
type FluentConfig struct {
	Host      string
	Port      int
	TagPrefix string
	Level     slog.Leveler
}

// FluentLogger ships log entries to Fluent Bit, tagged by level.
type FluentLogger struct {
	client   *fluent.Fluent
	fields   Fields
	minLevel slog.Level
}

// NewFluentLogger connects lazily; errors only surface when posting.
func NewFluentLogger(cfg FluentConfig) (*FluentLogger, error) {
	if cfg.TagPrefix == "" {
		return nil, fmt.Errorf("fluent: tag prefix is required")
	}
	client, err := fluent.New(fluent.Config{
		FluentHost: cfg.Host,
		FluentPort: cfg.Port,
		TagPrefix:  cfg.TagPrefix,
		Async:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("fluent: create client: %w", err)
	}
	level := slog.LevelInfo
	if cfg.Level != nil {
		level = cfg.Level.Level()
	}
	return &FluentLogger{client: client, fields: Fields{}, minLevel: level}, nil
}

func (f *FluentLogger) merge(fields Fields) Fields {
	merged := make(Fields, len(f.fields)+len(fields)+3)
	for k, v := range f.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (f *FluentLogger) post(level slog.Level, tag, msg string, data Fields) {
	if level < f.minLevel {
		return
	}
	data["level"] = tag
	data["message"] = msg
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	_ = f.client.Post(tag, map[string]any(data))
}

func (f *FluentLogger) Debug(msg string, fields Fields) {
	f.post(slog.LevelDebug, "debug", msg, f.merge(fields))
}

func (f *FluentLogger) Info(msg string, fields Fields) {
	f.post(slog.LevelInfo, "info", msg, f.merge(fields))
}

func (f *FluentLogger) Warn(msg string, fields Fields) {
	f.post(slog.LevelWarn, "warn", msg, f.merge(fields))
}

func (f *FluentLogger) Error(msg string, err error, fields Fields) {
	data := f.merge(fields)
	if err != nil {
		data["error"] = err.Error()
	}
	f.post(slog.LevelError, "error", msg, data)
}

func (f *FluentLogger) WithFields(fields Fields) Logger {
	return &FluentLogger{client: f.client, fields: f.merge(fields), minLevel: f.minLevel}
}

// Close flushes pending entries.
func (f *FluentLogger) Close() error {
	return f.client.Close()
}
