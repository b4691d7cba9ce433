package verifier

import "github.com/deepnoodle-ai/irkit/ir"

// Option configures a verification run.
type Option func(*config)

type config struct {
	maxErrors   int
	parallelism int
}

func newConfig(c *ir.Context, opts []Option) config {
	cc := c.Config()
	cfg := config{
		maxErrors:   cc.MaxVerifyErrors,
		parallelism: cc.VerifyParallelism,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.parallelism < 1 {
		cfg.parallelism = 1
	}
	return cfg
}

// WithMaxErrors caps the number of violations collected by VerifyAll.
// Zero means no limit.
func WithMaxErrors(n int) Option {
	return func(cfg *config) {
		cfg.maxErrors = n
	}
}

// WithParallelism sets how many goroutines verify sibling operations.
// Values <= 1 verify sequentially.
func WithParallelism(n int) Option {
	return func(cfg *config) {
		cfg.parallelism = n
	}
}
