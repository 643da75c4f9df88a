package vertexflow

import (
	"log/slog"

	"github.com/randalmurphal/vertexflow/pkg/vertexflow/config"
	"github.com/randalmurphal/vertexflow/pkg/vertexflow/journal"
	"github.com/randalmurphal/vertexflow/pkg/vertexflow/observability"
)

// Defaults applied when the corresponding option is not set.
const (
	// DefaultMaxWorkers bounds concurrent vertex builds.
	DefaultMaxWorkers = 8

	// DefaultMaxLoopIterations bounds how many times a vertex may requeue
	// itself. Overridable per vertex via the "max_iterations" parameter.
	DefaultMaxLoopIterations = 100

	// DefaultStreamBuffer is the event channel capacity.
	DefaultStreamBuffer = 64
)

// executorOptions holds the resolved Executor configuration.
type executorOptions struct {
	maxWorkers        int
	maxLoopIterations int
	streamBuffer      int
	logger            *slog.Logger
	metrics           observability.MetricsRecorder
	spans             observability.SpanManager
	journal           journal.Store
}

func defaultOptions() executorOptions {
	return executorOptions{
		maxWorkers:        DefaultMaxWorkers,
		maxLoopIterations: DefaultMaxLoopIterations,
		streamBuffer:      DefaultStreamBuffer,
		logger:            slog.Default(),
		metrics:           observability.NoopMetrics{},
		spans:             observability.NoopSpanManager{},
	}
}

// Option configures an Executor.
type Option func(*executorOptions)

// WithMaxWorkers bounds concurrent vertex builds. Values below one are
// ignored.
func WithMaxWorkers(n int) Option {
	return func(o *executorOptions) {
		if n >= 1 {
			o.maxWorkers = n
		}
	}
}

// WithMaxLoopIterations sets the default loop bound for vertices that
// requeue themselves. A vertex-level "max_iterations" parameter takes
// precedence. Values below one are ignored.
func WithMaxLoopIterations(n int) Option {
	return func(o *executorOptions) {
		if n >= 1 {
			o.maxLoopIterations = n
		}
	}
}

// WithStreamBuffer sets the event channel capacity. Values below zero are
// ignored; zero makes the stream unbuffered.
func WithStreamBuffer(n int) Option {
	return func(o *executorOptions) {
		if n >= 0 {
			o.streamBuffer = n
		}
	}
}

// WithLogger sets the structured logger. Nil restores slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *executorOptions) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
func WithMetrics() Option {
	return func(o *executorOptions) {
		o.metrics = observability.NewMetricsRecorder()
	}
}

// WithMetricsRecorder sets a custom metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(o *executorOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans using the global tracer provider.
func WithTracing() Option {
	return func(o *executorOptions) {
		o.spans = observability.NewSpanManager()
	}
}

// WithJournal persists every run's mutation-event trace to the given store.
// The executor registers a journaling observer on each graph it runs; the
// stored trace can be reloaded with LoadJournal and replayed with Replay.
func WithJournal(store journal.Store) Option {
	return func(o *executorOptions) {
		o.journal = store
	}
}

// FromConfig applies executor settings from a configuration map. Recognized
// keys: max_workers, max_loop_iterations, stream_buffer, metrics (bool),
// tracing (bool). Unknown keys are ignored.
func FromConfig(cfg config.Config) Option {
	return func(o *executorOptions) {
		WithMaxWorkers(cfg.Int("max_workers", o.maxWorkers))(o)
		WithMaxLoopIterations(cfg.Int("max_loop_iterations", o.maxLoopIterations))(o)
		WithStreamBuffer(cfg.Int("stream_buffer", o.streamBuffer))(o)
		if cfg.Bool("metrics", false) {
			WithMetrics()(o)
		}
		if cfg.Bool("tracing", false) {
			WithTracing()(o)
		}
	}
}

// runOptions holds per-run configuration.
type runOptions struct {
	runID  string
	inputs map[string]any
}

// RunOption configures one Run call.
type RunOption func(*runOptions)

// WithRunID sets the run identifier. A UUID is generated when unset.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithInputs supplies run-level inputs, passed verbatim to every builder
// through BuildRequest.Inputs.
func WithInputs(inputs map[string]any) RunOption {
	return func(o *runOptions) { o.inputs = inputs }
}
