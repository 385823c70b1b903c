package letsearch

import (
	"log/slog"
	"os"
	"path/filepath"
)

type options struct {
	root    string
	backend string
	token   string
	logger  *Logger
	metrics MetricsCollector
}

// Option configures a CollectionRegistry.
type Option func(*options)

// WithRoot overrides the directory collections live under. The default is
// ~/.letsearch/collections (falling back to a temp directory when the home
// directory cannot be resolved).
func WithRoot(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.root = dir
		}
	}
}

// WithBackend selects the embedder backend constructed by model loads,
// "tfidf" (default) or "onnx".
func WithBackend(backend string) Option {
	return func(o *options) {
		if backend != "" {
			o.backend = backend
		}
	}
}

// WithToken sets the hub authentication token forwarded to model
// downloads. An empty token means anonymous access.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithLogger configures structured logging. Pass nil to keep the no-op
// default.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger at the given level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetrics configures the metrics sink. Pass NoopMetrics in tests to
// keep the global Prometheus registry clean.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		root:    defaultRoot(),
		backend: "tfidf",
		logger:  NewNopLogger(),
		metrics: PrometheusMetrics{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "letsearch", "collections")
	}
	return filepath.Join(home, ".letsearch", "collections")
}
