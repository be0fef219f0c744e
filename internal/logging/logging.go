// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"tradejournal/internal/models"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	// Console goes to stderr so command output stays machine readable
	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		return zerolog.Nop()
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ContextKey is the type for context keys.
type ContextKey string

// LoggerKey is the context key for the logger.
const LoggerKey ContextKey = "logger"

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithScope adds the broker and ticker to the logger context.
func WithScope(logger zerolog.Logger, scope models.Scope) zerolog.Logger {
	return logger.With().Str("broker", scope.Broker).Str("ticker", scope.Ticker).Logger()
}

// WithExecutionID adds an execution ID to the logger context.
func WithExecutionID(logger zerolog.Logger, id int64) zerolog.Logger {
	return logger.With().Int64("execution_id", id).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogMutation logs an applied execution mutation. The logger is expected to
// carry the execution id (see WithExecutionID).
func LogMutation(logger zerolog.Logger, kind string, scope models.Scope, err error) {
	var event *zerolog.Event
	if err != nil {
		event = logger.Warn().Err(err)
	} else {
		event = logger.Info()
	}
	event.
		Str("event", "mutation").
		Str("kind", kind).
		Str("scope", scope.String()).
		Msg("Execution mutation")
}

// LogRecompute logs a scope recomputation.
func LogRecompute(logger zerolog.Logger, scope models.Scope, executions, trades int, duration time.Duration) {
	logger.Debug().
		Str("event", "recompute").
		Str("scope", scope.String()).
		Int("executions", executions).
		Int("trades", trades).
		Dur("duration", duration).
		Msg("Scope recomputed")
}

// LogImport logs the outcome of an import run.
func LogImport(logger zerolog.Logger, source string, rows, merged, scopes int, err error) {
	var event *zerolog.Event
	if err != nil {
		event = logger.Error().Err(err)
	} else {
		event = logger.Info()
	}
	event.
		Str("event", "import").
		Str("source", source).
		Int("rows", rows).
		Int("merged", merged).
		Int("scopes", scopes).
		Msg("Import finished")
}
