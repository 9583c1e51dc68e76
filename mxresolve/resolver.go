// Package mxresolve looks up the mail exchangers of a domain.
//
// Two implementations share the [Resolver] interface: [NetResolver] uses the
// system resolver, and [DNSResolver] queries a chosen DNS server directly.
// Both bound every lookup with a timeout and return host names ordered by
// preference, most preferred first, with the trailing dot removed. A domain
// without MX records, including one that does not exist, yields an empty
// slice and a nil error.
package mxresolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/idna"
)

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 5 * time.Second

// Resolver returns the mail exchangers of a domain, most preferred first.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]string, error)
}

// Option configures a resolver.
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout: DefaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTimeout bounds each lookup. Defaults to 5s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New returns a DNSResolver querying server, or a NetResolver using the
// system configuration when server is empty.
func New(server string, opts ...Option) Resolver {
	if server == "" {
		return NewNetResolver(nil, opts...)
	}
	return NewDNSResolver(server, opts...)
}

// normalize converts domain to its ASCII form without a trailing dot.
func normalize(domain string) (string, error) {
	d := strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if d == "" {
		return "", fmt.Errorf("mxresolve: empty domain")
	}
	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("mxresolve: domain %q: %w", domain, err)
	}
	return ascii, nil
}

// hostName trims the trailing dot. It returns "" for the null MX ".".
func hostName(h string) string {
	return strings.TrimSuffix(h, ".")
}
