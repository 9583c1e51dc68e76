package mxresolve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
)

// NetResolver resolves MX records with a net.Resolver.
type NetResolver struct {
	r    *net.Resolver
	opts *options
}

// NewNetResolver wraps r, or net.DefaultResolver when r is nil.
func NewNetResolver(r *net.Resolver, opts ...Option) *NetResolver {
	if r == nil {
		r = net.DefaultResolver
	}
	return &NetResolver{r: r, opts: newOptions(opts)}
}

// LookupMX implements Resolver.
func (n *NetResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	name, err := normalize(domain)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, n.opts.timeout)
	defer cancel()

	mxs, err := n.r.LookupMX(ctx, name)
	if err != nil && len(mxs) == 0 {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			n.opts.logger.Debug().Str("domain", name).Msg("no MX records")
			return nil, nil
		}
		return nil, fmt.Errorf("mxresolve: lookup %s: %w", name, err)
	}

	slices.SortStableFunc(mxs, func(a, b *net.MX) int { return cmp.Compare(a.Pref, b.Pref) })
	hosts := make([]string, 0, len(mxs))
	for _, mx := range mxs {
		if h := hostName(mx.Host); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}
