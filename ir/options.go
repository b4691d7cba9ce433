package ir

import "github.com/rs/zerolog"

// Option describes a function used to configure a Context.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	listener Listener
	config   Config
}

func defaultOptions() options {
	return options{
		logger:   zerolog.Nop(),
		listener: NoOpListener{},
		config:   DefaultConfig(),
	}
}

// WithLogger sets the structured logger used by the Context. The logger is
// enriched with the Context id. By default nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithListener sets a listener notified of every graph mutation.
//
// Listener methods are called synchronously while the mutation is in
// progress, after the graph has reached a consistent state.
func WithListener(listener Listener) Option {
	return func(o *options) {
		if listener == nil {
			listener = NoOpListener{}
		}
		o.listener = listener
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithExclusiveDiscipline makes mutations outside Context.Exclusive fail with
// errz.ErrLockDiscipline.
func WithExclusiveDiscipline() Option {
	return func(o *options) {
		o.config.RequireExclusive = true
	}
}
