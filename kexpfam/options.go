package kexpfam

import "github.com/YuminosukeSato/kexpfam/pkg/log"

// Option configures a Base estimator.
type Option func(*Base)

// WithWorkers sets the number of goroutines used for per-point evaluation
// and system assembly. Values <= 0 use one worker per CPU.
func WithWorkers(n int) Option {
	return func(b *Base) {
		b.workers = n
	}
}

// WithLogger sets the logger for problem size and solver diagnostics.
func WithLogger(l log.Logger) Option {
	return func(b *Base) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithModelName overrides the name used in logs and errors.
func WithModelName(name string) Option {
	return func(b *Base) {
		if name != "" {
			b.name = name
		}
	}
}
