package rbld

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

const (
	defaultAggregateDeadline = 250 * time.Millisecond
	aggregateResponseTTL     = 300
	aggregateTXTCap          = 5
)

// aggregateChildResult is one RBL's contribution to an in-flight aggregate
// lookup, delivered over a channel so the executor can race it against the
// deadline timer.
type aggregateChildResult struct {
	rbl    RBL
	result LookupResult
}

// AggregateExecutor runs a deadline-bounded fan-out over an aggregate
// zone's RBL set (component E). Each RBL is queried through a cache-aware
// single-RBL resolver; stragglers past the deadline are abandoned but keep
// running in the background so their eventual completion still populates
// the cache.
type AggregateExecutor struct {
	resolver *CachedSingleRBLResolver
	deadline time.Duration
}

// NewAggregateExecutor returns an executor bounded by deadline (0 selects
// the 250ms default).
func NewAggregateExecutor(resolver *CachedSingleRBLResolver, deadline time.Duration) *AggregateExecutor {
	if deadline == 0 {
		deadline = defaultAggregateDeadline
	}
	return &AggregateExecutor{resolver: resolver, deadline: deadline}
}

// AggregateOutcome summarises how many RBLs were queried, how many
// completed within the deadline, and how many of those reported Listed.
type AggregateOutcome struct {
	Completed []aggregateChildResult
	Total     int
	Listed    int
	Elapsed   time.Duration
}

// Run performs steps 1-4 of the aggregate algorithm: launch one concurrent
// cached lookup per RBL, wait for either all of them or the deadline,
// whichever comes first, and collect whatever has completed by then.
func (e *AggregateExecutor) Run(ctx context.Context, ip net.IP, zone AggregateZone, rbls []RBL) AggregateOutcome {
	start := time.Now()

	resultCh := make(chan aggregateChildResult, len(rbls))

	// The group is detached from ctx: a straggler keeps running past the
	// deadline so it can still warm the cache, per the cancellation
	// policy. We never call g.Wait() on the hot path; a background
	// goroutine waits on it solely to log once every child has settled.
	g := new(errgroup.Group)
	for _, rbl := range rbls {
		rbl := rbl
		g.Go(func() error {
			result := e.resolver.Lookup(context.Background(), ip, rbl)
			resultCh <- aggregateChildResult{rbl: rbl, result: result}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		Log.WithFields(map[string]interface{}{
			"zone": zone.Domain,
			"rbls": len(rbls),
		}).Debug("aggregate fan-out settled")
	}()

	timer := time.NewTimer(e.deadline)
	defer timer.Stop()

	var completed []aggregateChildResult
collect:
	for len(completed) < len(rbls) {
		select {
		case r := <-resultCh:
			completed = append(completed, r)
		case <-timer.C:
			break collect
		}
	}

	var listed int
	for _, c := range completed {
		if c.result.Listed == Listed {
			listed++
		}
	}

	return AggregateOutcome{
		Completed: completed,
		Total:     len(rbls),
		Listed:    listed,
		Elapsed:   time.Since(start),
	}
}

// BuildResponse implements steps 5-7: encode the outcome as an A or TXT
// answer, or NXDOMAIN if nothing was listed.
func BuildResponse(q *dns.Msg, outcome AggregateOutcome) *dns.Msg {
	if outcome.Listed == 0 {
		return nxdomain(q)
	}

	switch qType(q) {
	case dns.TypeA:
		return noerrorA(q, sentinelListed, aggregateResponseTTL)
	case dns.TypeTXT:
		return noerrorTXT(q, aggregateTXTLines(outcome), aggregateResponseTTL)
	default:
		return nxdomain(q)
	}
}

// aggregateTXTLines builds the TXT record strings for an aggregate
// response: a summary line, up to aggregateTXTCap per-RBL listing lines,
// and an overflow line when more than that many RBLs are listed.
func aggregateTXTLines(outcome AggregateOutcome) []string {
	lines := make([]string, 0, 2+aggregateTXTCap)
	lines = append(lines, fmt.Sprintf(
		"Listed on %d/%d RBLs (%d/%d checked in %dms)",
		outcome.Listed, len(outcome.Completed), len(outcome.Completed), outcome.Total, outcome.Elapsed.Milliseconds(),
	))

	var shown int
	for _, c := range outcome.Completed {
		if c.result.Listed != Listed {
			continue
		}
		if shown >= aggregateTXTCap {
			break
		}
		lines = append(lines, fmt.Sprintf("%s: LISTED", c.rbl.Name))
		shown++
	}

	if outcome.Listed > aggregateTXTCap {
		lines = append(lines, fmt.Sprintf("... and %d more (%d/%d shown)", outcome.Listed-aggregateTXTCap, aggregateTXTCap, outcome.Listed))
	}

	return lines
}
