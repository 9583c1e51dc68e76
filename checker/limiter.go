package checker

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// domainLimiter keeps one token bucket per recipient domain.
type domainLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newDomainLimiter(limit rate.Limit, burst int) *domainLimiter {
	if limit <= 0 {
		return nil
	}
	return &domainLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (d *domainLimiter) get(domain string) *rate.Limiter {
	key := strings.ToLower(domain)
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[key] = l
	}
	return l
}

// Wait blocks until a session to domain may be opened. A nil limiter never
// blocks.
func (d *domainLimiter) Wait(ctx context.Context, domain string) error {
	if d == nil {
		return nil
	}
	return d.get(domain).Wait(ctx)
}
