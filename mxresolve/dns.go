package mxresolve

import (
	"cmp"
	"context"
	"fmt"
	"net"
	"slices"

	"github.com/miekg/dns"
)

// DNSResolver queries one DNS server directly, retrying over TCP when a
// UDP answer is truncated.
type DNSResolver struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
	opts   *options
}

// NewDNSResolver returns a resolver for server ("8.8.8.8" or "8.8.8.8:53").
func NewDNSResolver(server string, opts ...Option) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	o := newOptions(opts)
	return &DNSResolver{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: o.timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: o.timeout},
		opts:   o,
	}
}

// Server returns the address queried.
func (r *DNSResolver) Server() string {
	return r.server
}

// LookupMX implements Resolver.
func (r *DNSResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	name, err := normalize(domain)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeMX)
	m.RecursionDesired = true

	in, _, err := r.udp.ExchangeContext(ctx, m, r.server)
	if err == nil && in.Truncated {
		r.opts.logger.Debug().Str("domain", name).Msg("truncated answer, retrying over tcp")
		in, _, err = r.tcp.ExchangeContext(ctx, m, r.server)
	}
	if err != nil {
		return nil, fmt.Errorf("mxresolve: query %s at %s: %w", name, r.server, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		r.opts.logger.Debug().Str("domain", name).Msg("domain does not exist")
		return nil, nil
	default:
		return nil, fmt.Errorf("mxresolve: query %s at %s: %s", name, r.server, dns.RcodeToString[in.Rcode])
	}

	var mxs []*dns.MX
	for _, rr := range in.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			mxs = append(mxs, mx)
		}
	}
	slices.SortStableFunc(mxs, func(a, b *dns.MX) int { return cmp.Compare(a.Preference, b.Preference) })

	hosts := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		if h := hostName(mx.Mx); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}
