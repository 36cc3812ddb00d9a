package rbld

import (
	"context"
	"fmt"
	"net"
	"time"
)

const rfc5782CheckTimeout = 5 * time.Second

// rfc5782ListedProbe and rfc5782NotListedProbe are the well-known sanity-check addresses RFC 5782
// §5 mandates for IPv4-based DNSBLs: 127.0.0.2 must always be listed,
// 127.0.0.1 must never be.
var (
	rfc5782ListedProbe    = net.IPv4(127, 0, 0, 2)
	rfc5782NotListedProbe = net.IPv4(127, 0, 0, 1)
)

// RFC5782CheckResult reports whether an RBL's test records behave the way
// RFC 5782 requires.
type RFC5782CheckResult struct {
	RBL     RBL
	Healthy bool
	Reason  string
}

// CheckRFC5782Compliance validates one RBL's test records by querying both
// probe addresses against an upstream resolver. It blocks until both DNS
// lookups complete, so invoke it from a background goroutine at startup
// (and periodically thereafter, if desired).
func CheckRFC5782Compliance(ctx context.Context, resolver Resolver, rbl RBL) RFC5782CheckResult {
	single := NewSingleRBLResolver(resolver, rfc5782CheckTimeout)

	listed := single.Lookup(ctx, rfc5782ListedProbe, rbl)
	if listed.Listed != Listed {
		return RFC5782CheckResult{
			RBL:    rbl,
			Reason: fmt.Sprintf("127.0.0.2 must be listed on %s, got %s", rbl.Host, listed.Listed),
		}
	}

	notListed := single.Lookup(ctx, rfc5782NotListedProbe, rbl)
	if notListed.Listed != NotListed {
		return RFC5782CheckResult{
			RBL:    rbl,
			Reason: fmt.Sprintf("127.0.0.1 must not be listed on %s, got %s", rbl.Host, notListed.Listed),
		}
	}

	return RFC5782CheckResult{RBL: rbl, Healthy: true}
}

// CheckAllRFC5782 runs CheckRFC5782Compliance for every rbl and logs a
// warning for each that fails, without returning an error: a misbehaving
// upstream list shouldn't prevent the server from starting.
func CheckAllRFC5782(ctx context.Context, resolver Resolver, rbls []RBL) []RFC5782CheckResult {
	results := make([]RFC5782CheckResult, 0, len(rbls))
	for _, rbl := range rbls {
		res := CheckRFC5782Compliance(ctx, resolver, rbl)
		results = append(results, res)
		if !res.Healthy {
			Log.WithFields(map[string]interface{}{
				"rbl":    rbl.Host,
				"reason": res.Reason,
			}).Warn("RFC 5782 compliance check failed")
		}
	}
	return results
}
