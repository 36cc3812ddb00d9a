package rbld

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
)

// Resolver is satisfied by anything that can answer a DNS query against an
// upstream server. DNSClient is the production implementation; tests
// substitute TestResolver.
type Resolver interface {
	Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error)
	fmt.Stringer
}

var _ Resolver = &DNSClient{}
