// Package dns resolves endpoint addresses to host names for column labels.
package dns

//go:generate go tool errtrace -w .

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/miekg/dns"

	"github.com/ghettovoice/sipflow/internal/errorutil"
	"github.com/ghettovoice/sipflow/internal/log"
	"github.com/ghettovoice/sipflow/internal/syncutil"
)

// DefaultTimeout is the timeout of a PTR query.
const DefaultTimeout = 2 * time.Second

// Resolver resolves IP addresses to host names and caches the answers.
//
// Lookups of the same address are serialized, so concurrent callers produce one query.
// Answers and "not found" results are cached for the resolver lifetime, other errors are not.
type Resolver struct {
	net.Resolver

	// NameServer specifies the DNS server address (e.g., "8.8.8.8:53").
	// If set, PTR queries are sent directly to it,
	// otherwise the system resolver is used.
	NameServer string
	// Timeout specifies the timeout for DNS queries.
	// If zero, defaults to [DefaultTimeout].
	Timeout time.Duration
	// Log is a logger used to log lookups.
	// If nil, [log.Default] is used.
	Log *slog.Logger

	cache syncutil.RWMap[string, []string]
	locks syncutil.KeyMutex[string]
}

// LookupAddr returns host names of addr, the first one is the preferred name.
// An address without names yields an empty slice and no error.
func (r *Resolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	ip := net.ParseIP(strings.Trim(addr, "[]"))
	if ip == nil {
		return nil, errtrace.Wrap(&net.DNSError{Err: "not an IP address", Name: addr})
	}
	key := ip.String()

	if names, ok := r.cache.Get(key); ok {
		return slices.Clone(names), nil
	}

	unlock := r.locks.Lock(key)
	defer unlock()
	if names, ok := r.cache.Get(key); ok {
		return slices.Clone(names), nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	names, err := r.lookup(ctx, key)
	if err != nil {
		var dnsErr *net.DNSError
		if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
			r.log().LogAttrs(ctx, slog.LevelDebug, "reverse lookup failed",
				slog.String("addr", key),
				slog.Bool("timeout", errorutil.IsTimeoutErr(err)),
				slog.Any("error", err),
			)
			return nil, errtrace.Wrap(err)
		}
		names = []string{}
	}

	r.cache.Set(key, names)
	r.log().LogAttrs(ctx, slog.LevelDebug, "address resolved",
		slog.String("addr", key),
		slog.Any("names", names),
	)
	return slices.Clone(names), nil
}

func (r *Resolver) lookup(ctx context.Context, addr string) ([]string, error) {
	if r.NameServer == "" {
		return errtrace.Wrap2(r.Resolver.LookupAddr(ctx, addr))
	}

	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)
	m.RecursionDesired = true

	client := &dns.Client{Timeout: r.timeout()}
	resp, _, err := client.ExchangeContext(ctx, m, r.nameserver())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	if resp.Rcode != dns.RcodeSuccess {
		return nil, errtrace.Wrap(&net.DNSError{
			Err:        dns.RcodeToString[resp.Rcode],
			Name:       addr,
			Server:     r.nameserver(),
			IsNotFound: resp.Rcode == dns.RcodeNameError,
		})
	}

	names := make([]string, 0, len(resp.Answer))
	for _, ans := range resp.Answer {
		if rr, ok := ans.(*dns.PTR); ok {
			names = append(names, rr.Ptr)
		}
	}
	return names, nil
}

// Clear drops cached answers.
func (r *Resolver) Clear() { r.cache.Clear() }

func (r *Resolver) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *Resolver) nameserver() string {
	if _, _, err := net.SplitHostPort(r.NameServer); err != nil {
		return net.JoinHostPort(r.NameServer, "53")
	}
	return r.NameServer
}

func (r *Resolver) log() *slog.Logger {
	if r.Log == nil {
		return log.Default()
	}
	return r.Log
}
