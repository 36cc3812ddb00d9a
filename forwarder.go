package rbld

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

const forwardTimeout = 5 * time.Second

// Forwarder passes queries that don't match any RBL, aggregate, or
// custom-RBL zone to a configured upstream recursive resolver (component
// H).
type Forwarder struct {
	resolver Resolver
}

func NewForwarder(resolver Resolver) *Forwarder {
	return &Forwarder{resolver: resolver}
}

// Forward issues q against the upstream resolver with a 5s timeout,
// copying its answer/authority/additional sections into the reply. On
// upstream failure it responds SERVFAIL.
func (f *Forwarder) Forward(ctx context.Context, q *dns.Msg, ci ClientInfo) *dns.Msg {
	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	upstream, err := f.resolver.Resolve(ctx, q, ci)
	if err != nil || upstream == nil {
		Log.WithError(err).Debug("upstream forward failed")
		return servfail(q)
	}

	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = false
	a.RecursionAvailable = true
	a.Rcode = upstream.Rcode
	a.Answer = upstream.Answer
	a.Ns = upstream.Ns
	a.Extra = upstream.Extra
	return a
}
