package rbld

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestForwarderCopiesUpstreamAnswer(t *testing.T) {
	tr := &TestResolver{
		ResolveFunc: func(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
			a := new(dns.Msg)
			a.SetReply(q)
			a.Answer = []dns.RR{&dns.A{
				Hdr: dns.RR_Header{Name: q.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
				A:   []byte{93, 184, 216, 34},
			}}
			return a, nil
		},
	}
	f := NewForwarder(tr)

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)

	a := f.Forward(context.Background(), q, ClientInfo{})
	require.Equal(t, dns.RcodeSuccess, a.Rcode)
	require.Len(t, a.Answer, 1)
	require.True(t, a.RecursionAvailable)
}

func TestForwarderServfailOnUpstreamError(t *testing.T) {
	tr := &TestResolver{}
	tr.SetFail(true)
	f := NewForwarder(tr)

	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)

	a := f.Forward(context.Background(), q, ClientInfo{})
	require.Equal(t, dns.RcodeServerFailure, a.Rcode)
}
