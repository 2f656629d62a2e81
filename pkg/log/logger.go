// Package log provides structured logging utilities for the miner.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bardlex/gominer/pkg/errors"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration writing to stdout
func New(service, version, level, format string) *Logger {
	return NewWithWriter(os.Stdout, service, version, level, format)
}

// NewWithWriter creates a logger that writes to w
func NewWithWriter(w io.Writer, service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// Create handler based on format
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithWorker returns a logger with the mining worker index
func (l *Logger) WithWorker(id int) *Logger {
	return l.WithFields("worker_id", id)
}

// WithTemplate returns a logger with template-specific fields
func (l *Logger) WithTemplate(previousHash, merkleRoot string, txCount int) *Logger {
	return l.WithFields("previous_hash", previousHash, "merkle_root", merkleRoot, "tx_count", txCount)
}

// WithError returns a logger with the error and, for classified errors, its operation and fields
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	fields := []any{"error", err.Error()}
	if op := errors.Operation(err); op != "" {
		fields = append(fields, "operation", op)
	}
	fields = append(fields, errors.Fields(err)...)
	return l.WithFields(fields...)
}

// LogDuration logs how long a step of the mining cycle took, at debug level
func (l *Logger) LogDuration(operation string, d time.Duration) {
	l.Debug("step completed",
		"operation", operation,
		"duration_ms", float64(d)/float64(time.Millisecond),
	)
}

// Mining-specific logging helpers

// LogHashrate logs a sampled hash rate
func (l *Logger) LogHashrate(hashes uint64, seconds float64) {
	rate := 0.0
	if seconds > 0 {
		rate = float64(hashes) / seconds
	}
	l.Info("hashrate",
		"hashes", hashes,
		"window_s", seconds,
		"khash_per_sec", rate/1000,
	)
}

// LogBlockFound logs when a nonce satisfying the target is found
func (l *Logger) LogBlockFound(blockHash string, nonce uint64, txCount int, elapsedMs float64) {
	l.Info("block found",
		"block_hash", blockHash,
		"nonce", nonce,
		"tx_count", txCount,
		"search_ms", elapsedMs,
	)
}

// LogSubmission logs the node's verdict on a submitted block
func (l *Logger) LogSubmission(blockHash string, nonce uint64, status string, latencyMs float64) {
	l.Info("block submission",
		"block_hash", blockHash,
		"nonce", nonce,
		"status", status,
		"latency_ms", latencyMs,
	)
}
