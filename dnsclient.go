package rbld

import (
	"context"
	"fmt"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// DNSClient issues independent, deadline-bounded DNS queries against a
// single upstream resolver over UDP. It has no pipelining or connection
// reuse: the upstream resolvers this talks to (RBL authoritative zones,
// the configured recursive forwarder) are queried too infrequently per
// endpoint for persistent connections to pay for their complexity.
type DNSClient struct {
	endpoint string
	client   *dns.Client
}

// NewDNSClient returns a client that queries endpoint (host:port) over UDP.
func NewDNSClient(endpoint string) *DNSClient {
	return &DNSClient{
		endpoint: endpoint,
		client:   &dns.Client{Net: "udp"},
	}
}

// Resolve sends q to the upstream resolver and returns its answer. The
// context's deadline, if any, bounds the exchange; the caller is
// responsible for classifying a returned error.
func (d *DNSClient) Resolve(ctx context.Context, q *dns.Msg, ci ClientInfo) (*dns.Msg, error) {
	Log.WithFields(logrus.Fields{
		"client":   ci.SourceIP,
		"qname":    qName(q),
		"resolver": d.endpoint,
	}).Debug("querying upstream resolver")

	a, _, err := d.client.ExchangeContext(ctx, q, d.endpoint)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DNSClient) String() string {
	return fmt.Sprintf("DNS(%s)", d.endpoint)
}
