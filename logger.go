package letsearch

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with letsearch-specific context.
// This provides structured logging with consistent field names across
// the CollectionRegistry, Collection, and the adapters built on top of them.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a text handler writing to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewJSONLogger creates a Logger that writes JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewNopLogger creates a Logger that discards all log output. This is the
// default when no logger option is supplied.
func NewNopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)})
	return &Logger{Logger: slog.New(handler)}
}

// WithCollection scopes the logger to a single collection.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{Logger: l.Logger.With("collection", name)}
}

// LogImport logs an import_jsonl/import_parquet operation.
func (l *Logger) LogImport(ctx context.Context, collection, path string, rows int, dur time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "import failed", "collection", collection, "path", path, "error", err)
		return
	}
	l.InfoContext(ctx, "import completed", "collection", collection, "path", path, "rows", rows, "duration", dur)
}

// LogEmbed logs an embed_column operation (once per completed batch, and on a failed prediction).
func (l *Logger) LogEmbed(ctx context.Context, collection, column string, done, total int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "embed batch failed", "collection", collection, "column", column, "done", done, "total", total, "error", err)
		return
	}
	l.DebugContext(ctx, "embed batch completed", "collection", collection, "column", column, "done", done, "total", total)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, collection, column string, k, results int, dur time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed", "collection", collection, "column", column, "k", k, "error", err)
		return
	}
	l.DebugContext(ctx, "search completed", "collection", collection, "column", column, "k", k, "results", results, "duration", dur)
}

// LogModelLoad logs a ModelRegistry.Load call triggered via ensureModelsLoaded.
func (l *Logger) LogModelLoad(ctx context.Context, path, variant string, handle uint32, cached bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "model load failed", "path", path, "variant", variant, "error", err)
		return
	}
	l.InfoContext(ctx, "model ready", "path", path, "variant", variant, "handle", handle, "cached", cached)
}
