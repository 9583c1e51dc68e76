package checker

import (
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/alexisbouchez/emailcheck.go/probe"
)

// DefaultBacklog is the number of checks that may wait for a worker.
const DefaultBacklog = 10000

// Option configures a Checker.
type Option func(*options)

type options struct {
	workers     int
	backlog     int
	probeOpts   []probe.Option
	domainRate  rate.Limit
	domainBurst int
	logger      zerolog.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		workers:     runtime.NumCPU(),
		backlog:     DefaultBacklog,
		domainBurst: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithWorkers sets the number of concurrent probes. Defaults to the number
// of CPUs.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithBacklog sets how many submitted checks may wait for a worker before
// Submit reports ErrSaturated.
func WithBacklog(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.backlog = n
		}
	}
}

// WithProbeOptions sets options passed to every probe session.
func WithProbeOptions(opts ...probe.Option) Option {
	return func(o *options) { o.probeOpts = append(o.probeOpts, opts...) }
}

// WithDomainRate limits how often sessions are opened for recipients of the
// same domain: perSecond sessions per second with the given burst. A rate of
// zero or less disables the limit.
func WithDomainRate(perSecond float64, burst int) Option {
	return func(o *options) {
		o.domainRate = rate.Limit(perSecond)
		if burst > 0 {
			o.domainBurst = burst
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
