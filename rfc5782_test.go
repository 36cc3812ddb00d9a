package rbld

import (
	"context"
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

type probeAwareResolver struct {
	listedFor string
}

func (p *probeAwareResolver) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	a := new(dns.Msg)
	a.SetReply(q)
	if q.Question[0].Name == p.listedFor {
		a.Answer = []dns.RR{&dns.A{
			Hdr: dns.RR_Header{Name: q.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 900},
			A:   net.IPv4(127, 0, 0, 3),
		}}
		return a, nil
	}
	a.SetRcode(q, dns.RcodeNameError)
	return a, nil
}

func (p *probeAwareResolver) String() string { return "probeAwareResolver" }

func TestCheckRFC5782ComplianceHealthy(t *testing.T) {
	rbl := RBL{Name: "Test", Host: "bl.example.org"}
	listedName, _ := reverseIP(rfc5782ListedProbe)
	resolver := &probeAwareResolver{listedFor: dns.Fqdn(listedName + "." + rbl.Host)}

	res := CheckRFC5782Compliance(context.Background(), resolver, rbl)
	require.True(t, res.Healthy)
}

func TestCheckRFC5782ComplianceDetectsMissingListedProbe(t *testing.T) {
	rbl := RBL{Name: "Test", Host: "bl.example.org"}
	resolver := &probeAwareResolver{listedFor: "never-matches."}

	res := CheckRFC5782Compliance(context.Background(), resolver, rbl)
	require.False(t, res.Healthy)
	require.Contains(t, res.Reason, "127.0.0.2")
}
