package rbld

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// stubRBLBehavior describes how a fake upstream answers for one RBL host.
type stubRBLBehavior struct {
	delay  time.Duration
	listed bool
}

// hostDispatchResolver is a Resolver that answers differently per RBL host
// suffix, letting one test drive several RBLs with independent timings.
type hostDispatchResolver struct {
	byHost map[string]stubRBLBehavior
}

func (h *hostDispatchResolver) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	name := q.Question[0].Name
	var behavior stubRBLBehavior
	for host, b := range h.byHost {
		if dns.IsSubDomain(dns.Fqdn(host), name) {
			behavior = b
			break
		}
	}

	select {
	case <-time.After(behavior.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	a := new(dns.Msg)
	a.SetReply(q)
	if behavior.listed {
		a.Answer = []dns.RR{&dns.A{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 900},
			A:   net.IPv4(127, 0, 0, 3),
		}}
	} else {
		a.SetRcode(q, dns.RcodeNameError)
	}
	return a, nil
}

func (h *hostDispatchResolver) String() string { return "hostDispatchResolver" }

func newTestExecutor(byHost map[string]stubRBLBehavior, deadline time.Duration) *AggregateExecutor {
	cache := NewCache(nil, newFakeBackend())
	single := NewSingleRBLResolver(&hostDispatchResolver{byHost: byHost}, time.Second)
	cached := NewCachedSingleRBLResolver(single, cache)
	return NewAggregateExecutor(cached, deadline)
}

func TestAggregateListedOnTwoOfThree(t *testing.T) {
	executor := newTestExecutor(map[string]stubRBLBehavior{
		"a.example.org": {delay: 10 * time.Millisecond, listed: true},
		"b.example.org": {delay: 20 * time.Millisecond, listed: true},
		"c.example.org": {delay: 500 * time.Millisecond, listed: false},
	}, 250*time.Millisecond)

	rbls := []RBL{{Name: "A", Host: "a.example.org"}, {Name: "B", Host: "b.example.org"}, {Name: "C", Host: "c.example.org"}}
	zone := AggregateZone{Domain: "multi.example.com", Rbls: []string{"a.example.org", "b.example.org", "c.example.org"}}

	outcome := executor.Run(context.Background(), net.ParseIP("127.0.0.2"), zone, rbls)

	require.Equal(t, 3, outcome.Total)
	require.Len(t, outcome.Completed, 2)
	require.Equal(t, 2, outcome.Listed)

	q := new(dns.Msg)
	q.SetQuestion("2.0.0.127.multi.example.com.", dns.TypeTXT)
	resp := BuildResponse(q, outcome)
	require.Equal(t, dns.RcodeSuccess, resp.Rcode)
	require.Len(t, resp.Answer, 3) // summary + 2 listed
}

func TestAggregateEverythingTimesOut(t *testing.T) {
	executor := newTestExecutor(map[string]stubRBLBehavior{
		"a.example.org": {delay: 500 * time.Millisecond, listed: true},
		"b.example.org": {delay: 500 * time.Millisecond, listed: true},
		"c.example.org": {delay: 500 * time.Millisecond, listed: true},
	}, 250*time.Millisecond)

	rbls := []RBL{{Name: "A", Host: "a.example.org"}, {Name: "B", Host: "b.example.org"}, {Name: "C", Host: "c.example.org"}}
	zone := AggregateZone{Domain: "multi.example.com", Rbls: []string{"a.example.org", "b.example.org", "c.example.org"}}

	start := time.Now()
	outcome := executor.Run(context.Background(), net.ParseIP("127.0.0.2"), zone, rbls)
	elapsed := time.Since(start)

	require.Less(t, elapsed, 260*time.Millisecond)
	require.Equal(t, 0, outcome.Listed)
	require.Empty(t, outcome.Completed)

	q := new(dns.Msg)
	q.SetQuestion("2.0.0.127.multi.example.com.", dns.TypeA)
	resp := BuildResponse(q, outcome)
	require.Equal(t, dns.RcodeNameError, resp.Rcode)
	require.Empty(t, resp.Answer)
}

func TestAggregateZeroListedIsNXDOMAIN(t *testing.T) {
	executor := newTestExecutor(map[string]stubRBLBehavior{
		"a.example.org": {delay: time.Millisecond, listed: false},
	}, 250*time.Millisecond)

	rbls := []RBL{{Name: "A", Host: "a.example.org"}}
	zone := AggregateZone{Domain: "multi.example.com", Rbls: []string{"a.example.org"}}

	outcome := executor.Run(context.Background(), net.ParseIP("8.8.8.8"), zone, rbls)
	require.Equal(t, 0, outcome.Listed)

	q := new(dns.Msg)
	q.SetQuestion("8.8.8.8.multi.example.com.", dns.TypeA)
	resp := BuildResponse(q, outcome)
	require.Equal(t, dns.RcodeNameError, resp.Rcode)
}
