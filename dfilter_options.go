package dfilter

import "github.com/rs/zerolog"

// Option describes a function used to configure a filter compilation.
type Option func(*options)

type options struct {
	optimize     bool
	returnValues bool
	logger       *zerolog.Logger
}

// WithOptimization enables or disables the peephole branch optimizer.
// It is enabled by default; disabling it is mainly useful when inspecting
// the raw instruction stream.
func WithOptimization(enabled bool) Option {
	return func(o *options) {
		o.optimize = enabled
	}
}

// WithReturnValues requests that a bare field expression at the root of
// the tree return the field's values instead of only testing existence.
func WithReturnValues(enabled bool) Option {
	return func(o *options) {
		o.returnValues = enabled
	}
}

// WithLogger supplies a logger used for debug tracing of instruction
// emission. By default everything is discarded.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}
