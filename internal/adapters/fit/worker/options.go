package worker

import (
	"github.com/epiqlabs/epiq/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker's name for logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Worker) {
		if log != nil {
			w.logger = log
		}
	}
}
