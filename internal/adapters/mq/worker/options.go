// Package worker defines the collection workers that turn fetch jobs into
// stored activity and attendance facts.
package worker

import (
	"panelgauge/pkg/logger"
)

// Option applies a configuration option to the FetchWorker.
type Option func(*FetchWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *FetchWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *FetchWorker) {
		if l != nil {
			w.logger = l
		}
	}
}
