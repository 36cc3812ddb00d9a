package rbld

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/singleflight"
)

const (
	defaultSingleRBLTimeout = 5 * time.Second
	notListedTTL            = 3600
	errorTTL                = 300
)

// LookupResult is the outcome of checking one IP against one RBL, whether
// served fresh or from the cache.
type LookupResult struct {
	Listed       ListedState
	Response     net.IP
	ErrorKind    ErrorKind
	HasError     bool
	TTL          uint32
	ResponseTime time.Duration
	FromCache    bool
}

// SingleRBLResolver issues reverse-IP A-record lookups against one RBL
// zone and classifies the result (component D).
type SingleRBLResolver struct {
	resolver Resolver
	timeout  time.Duration
}

// NewSingleRBLResolver returns a resolver that queries upstream via r with
// the given per-lookup timeout (0 selects the 5s default).
func NewSingleRBLResolver(r Resolver, timeout time.Duration) *SingleRBLResolver {
	if timeout == 0 {
		timeout = defaultSingleRBLTimeout
	}
	return &SingleRBLResolver{resolver: r, timeout: timeout}
}

// Lookup performs steps 1-4 of the single-RBL resolution: compose the
// reverse-IP query, issue it with an enclosing deadline, and classify.
func (s *SingleRBLResolver) Lookup(ctx context.Context, ip net.IP, rbl RBL) LookupResult {
	start := time.Now()

	reverse, ok := reverseIP(ip)
	if !ok {
		return LookupResult{Listed: ErrState, ErrorKind: ErrInvalidQuery, HasError: true, TTL: errorTTL, ResponseTime: time.Since(start)}
	}

	q := new(dns.Msg)
	q.SetQuestion(reverse+"."+dns.Fqdn(rbl.Host), dns.TypeA)
	q.RecursionDesired = false

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a, err := s.resolver.Resolve(lookupCtx, q, ClientInfo{})
	elapsed := time.Since(start)

	if err != nil {
		kind := ErrNetwork
		if lookupCtx.Err() != nil {
			kind = ErrTimeout
		}
		return LookupResult{Listed: ErrState, ErrorKind: kind, HasError: true, TTL: errorTTL, ResponseTime: elapsed}
	}

	return classifyAnswer(a, elapsed)
}

func classifyAnswer(a *dns.Msg, elapsed time.Duration) LookupResult {
	if a == nil {
		return LookupResult{Listed: ErrState, ErrorKind: ErrNetwork, HasError: true, TTL: errorTTL, ResponseTime: elapsed}
	}

	switch a.Rcode {
	case dns.RcodeNameError:
		return LookupResult{Listed: NotListed, TTL: notListedTTL, ResponseTime: elapsed}
	case dns.RcodeSuccess:
		var (
			addr  net.IP
			ttl   uint32
			found bool
		)
		for _, rr := range a.Answer {
			arec, ok := rr.(*dns.A)
			if !ok {
				continue
			}
			if !found {
				addr = arec.A
			}
			if !found || arec.Hdr.Ttl < ttl {
				ttl = arec.Hdr.Ttl
			}
			found = true
		}
		if !found {
			// NOERROR with no data: not listed.
			return LookupResult{Listed: NotListed, TTL: notListedTTL, ResponseTime: elapsed}
		}
		if ttl == 0 {
			ttl = notListedTTL
		}
		return LookupResult{Listed: Listed, Response: addr, TTL: ttl, ResponseTime: elapsed}
	case dns.RcodeServerFailure:
		return LookupResult{Listed: ErrState, ErrorKind: ErrUpstreamServfail, HasError: true, TTL: errorTTL, ResponseTime: elapsed}
	default:
		return LookupResult{Listed: ErrState, ErrorKind: ErrNetwork, HasError: true, TTL: errorTTL, ResponseTime: elapsed}
	}
}

// CachedSingleRBLResolver wraps a SingleRBLResolver with the two-tier
// cache: a hit returns immediately with ResponseTime=0, FromCache=true; a
// miss performs the lookup and fires a cache write without blocking the
// caller's response.
type CachedSingleRBLResolver struct {
	resolver *SingleRBLResolver
	cache    *Cache
	group    singleflight.Group
}

func NewCachedSingleRBLResolver(resolver *SingleRBLResolver, cache *Cache) *CachedSingleRBLResolver {
	return &CachedSingleRBLResolver{resolver: resolver, cache: cache}
}

// Lookup serves a cache hit immediately. On a miss, concurrent callers for
// the same (ip, rbl) collapse onto a single upstream lookup via group, so a
// burst of identical queries (e.g. several clients, or several aggregate
// zones sharing an RBL) never fans out more than one request per key.
func (c *CachedSingleRBLResolver) Lookup(ctx context.Context, ip net.IP, rbl RBL) LookupResult {
	if entry, ok := c.cache.Get(ctx, ip, rbl.Host); ok {
		return LookupResult{
			Listed:    entry.Listed,
			Response:  entry.Response,
			ErrorKind: entry.ErrorKind,
			HasError:  entry.HasError,
			TTL:       entry.remainingTTL(time.Now()),
			FromCache: true,
		}
	}

	key := ip.String() + "|" + rbl.Host
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		result := c.resolver.Lookup(ctx, ip, rbl)

		entry := newCacheEntry(ip, rbl.Host, result.Listed, result.Response, result.ErrorKind, result.HasError, result.TTL)
		go func() {
			if err := c.cache.Put(context.Background(), entry); err != nil {
				Log.WithError(err).Debug("failed to cache single-RBL lookup result")
			}
		}()

		return result, nil
	})

	return v.(LookupResult)
}
