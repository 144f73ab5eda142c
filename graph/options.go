package graph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/lexgraph/graph/emit"
)

// Option is a functional option for configuring an Executor.
//
// Example:
//
//	exec, err := graph.NewExecutor(g,
//	    graph.WithStepTimeout(30*time.Second),
//	    graph.WithEmitter(emit.NewSlogEmitter(logger)),
//	    graph.WithMetrics(metrics),
//	)
type Option func(*executorConfig) error

// executorConfig collects options before they are applied to an Executor.
type executorConfig struct {
	stepTimeout time.Duration
	runTimeout  time.Duration
	fanOut      int
	emitter     emit.Emitter
	metrics     *PrometheusMetrics
	logger      *slog.Logger
}

// WithStepTimeout bounds each step's execution. The step receives a context
// with this deadline; collaborator calls that overrun it fail inside the
// step and are absorbed like any other collaborator failure.
//
// Default: 0 (no per-step limit).
func WithStepTimeout(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return fmt.Errorf("%w: step timeout must not be negative, got %v", ErrInvalidOption, d)
		}
		cfg.stepTimeout = d
		return nil
	}
}

// WithRunTimeout bounds the whole run. When it expires the run stops before
// the next step and the final snapshot is marked incomplete.
//
// Default: 0 (no limit beyond the caller's context).
func WithRunTimeout(d time.Duration) Option {
	return func(cfg *executorConfig) error {
		if d < 0 {
			return fmt.Errorf("%w: run timeout must not be negative, got %v", ErrInvalidOption, d)
		}
		cfg.runTimeout = d
		return nil
	}
}

// WithFanOut enables multi-branch routing. When the graph's router
// implements MultiRouter, every label it returns is followed, and activated
// steps on the same layer run concurrently, at most limit at a time, each on
// its own copy of the state. Their owned fields are merged in canonical step
// order once the layer finishes.
//
// Default: disabled; the router's single Route label is followed.
func WithFanOut(limit int) Option {
	return func(cfg *executorConfig) error {
		if limit < 1 {
			return fmt.Errorf("%w: fan-out limit must be at least 1, got %d", ErrInvalidOption, limit)
		}
		cfg.fanOut = limit
		return nil
	}
}

// WithEmitter sets the receiver of run events. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *executorConfig) error {
		if e != nil {
			cfg.emitter = e
		}
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	exec, _ := graph.NewExecutor(g, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *executorConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithLogger sets the logger used when the run context carries none
// (see ctxlog.WithLogger).
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *executorConfig) error {
		cfg.logger = logger
		return nil
	}
}
