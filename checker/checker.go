// Package checker runs mailbox checks on a bounded pool of workers.
//
// A check goes through three stages: the address syntax is validated, the
// recipient domain's MX records are resolved, and the most preferred
// exchanger is probed with HELO, MAIL FROM and RCPT TO. Each stage can end
// the check early: bad syntax yields [emailcheck.Invalid] without touching
// the network, and a domain without exchangers yields
// [emailcheck.NoMxRecords].
package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexisbouchez/emailcheck.go"
	"github.com/alexisbouchez/emailcheck.go/mxresolve"
	"github.com/alexisbouchez/emailcheck.go/probe"
)

var (
	// ErrSaturated is returned by Submit when the backlog is full.
	ErrSaturated = errors.New("checker: saturated")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("checker: closed")
)

// Checker checks whether mailboxes exist.
type Checker struct {
	resolver mxresolve.Resolver
	opts     *options
	limiter  *domainLimiter
	logger   zerolog.Logger

	queue  chan *job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

type job struct {
	h        *Handle
	enqueued time.Time
}

// New starts a Checker with its workers.
func New(resolver mxresolve.Resolver, opts ...Option) *Checker {
	o := newOptions(opts)
	c := &Checker{
		resolver: resolver,
		opts:     o,
		limiter:  newDomainLimiter(o.domainRate, o.domainBurst),
		logger:   o.logger,
		queue:    make(chan *job, o.backlog),
	}
	for i := 0; i < o.workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	c.logger.Debug().Int("workers", o.workers).Int("backlog", o.backlog).Msg("checker started")
	return c
}

// Submit queues a check of addr and returns its handle without waiting.
// It fails with ErrSaturated when the backlog is full and with ErrClosed
// after Shutdown.
func (c *Checker) Submit(addr string) (*Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		SubmissionsRejected.WithLabelValues("closed").Inc()
		return nil, ErrClosed
	}

	h := newHandle(uuid.NewString(), addr)
	QueueDepth.Inc()
	select {
	case c.queue <- &job{h: h, enqueued: time.Now()}:
		return h, nil
	default:
		QueueDepth.Dec()
		SubmissionsRejected.WithLabelValues("saturated").Inc()
		return nil, ErrSaturated
	}
}

// CheckIfEmailExists submits a check of addr. Only [emailcheck.NotExists],
// [emailcheck.NoMxRecords] and [emailcheck.Invalid] are reliable reasons
// not to send mail; an [emailcheck.Exists] result can still bounce, and
// [emailcheck.Error] says nothing about the mailbox.
func (c *Checker) CheckIfEmailExists(addr string) (*Handle, error) {
	return c.Submit(addr)
}

// Check runs a check of addr on the calling goroutine. ctx bounds the DNS
// lookup, the rate limit wait and the probe.
func (c *Checker) Check(ctx context.Context, addr string) Result {
	return c.run(ctx, uuid.NewString(), addr)
}

// Shutdown stops admitting checks, lets queued checks finish and waits for
// the workers, or until ctx is done.
func (c *Checker) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Checker) worker(n int) {
	defer c.wg.Done()
	for j := range c.queue {
		QueueDepth.Dec()
		c.logger.Trace().Int("worker", n).Str("request_id", j.h.id).
			Dur("queued", time.Since(j.enqueued)).Msg("check dequeued")
		j.h.resolve(c.run(context.Background(), j.h.id, j.h.address))
	}
}

// run executes the pipeline and records the result. A panic in any stage
// resolves to emailcheck.Error.
func (c *Checker) run(ctx context.Context, id, addr string) (res Result) {
	start := time.Now()
	ChecksInFlight.Inc()
	logger := c.logger.With().Str("request_id", id).Str("address", addr).Logger()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("check panicked")
			res = Result{Status: emailcheck.Error, Err: fmt.Errorf("checker: panic: %v", p)}
		}
		res.ID = id
		res.Address = addr
		res.Duration = time.Since(start)

		ChecksInFlight.Dec()
		status := res.Status.String()
		ChecksTotal.WithLabelValues(status).Inc()
		CheckDuration.WithLabelValues(status).Observe(res.Duration.Seconds())

		logger.Info().Str("status", status).Str("mx", res.MXHost).
			Dur("duration", res.Duration).Err(res.Err).Msg("check finished")
	}()

	return c.pipeline(ctx, addr, logger)
}

func (c *Checker) pipeline(ctx context.Context, addr string, logger zerolog.Logger) Result {
	a, err := emailcheck.ParseAddress(addr)
	if err != nil {
		return Result{Status: emailcheck.Invalid, Err: err}
	}

	hosts, err := c.resolver.LookupMX(ctx, a.Domain())
	if err != nil {
		return Result{Status: emailcheck.Error, Err: err}
	}
	if len(hosts) == 0 {
		return Result{Status: emailcheck.NoMxRecords}
	}
	host := hosts[0]

	if err := c.limiter.Wait(ctx, a.Domain()); err != nil {
		return Result{Status: emailcheck.Error, MXHost: host, Err: fmt.Errorf("checker: rate limit %s: %w", a.Domain(), err)}
	}

	opts := append([]probe.Option{probe.WithLogger(logger)}, c.opts.probeOpts...)
	out := probe.Probe(ctx, host, a.String(), opts...)
	return Result{
		Status: out.Status,
		MXHost: host,
		Reply:  out.Reply,
		Err:    out.Err,
	}
}
