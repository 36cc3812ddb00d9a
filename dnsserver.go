package rbld

import (
	"context"
	"expvar"
	"net"

	"github.com/miekg/dns"
)

// ServerMetrics exposes per-protocol query/response counters via expvar.
type ServerMetrics struct {
	query    *expvar.Int
	response *expvar.Map
	errors   *expvar.Map
}

func newServerMetrics(protocol string) *ServerMetrics {
	return &ServerMetrics{
		query:    getVarInt("server", protocol, "query"),
		response: getVarMap("server", protocol, "response"),
		errors:   getVarMap("server", protocol, "error"),
	}
}

// Server is the DNS front-end (component G): it binds UDP and TCP on the
// same host/port, decodes inbound messages, classifies the query name via
// the zone registry, dispatches to the matching handler, and encodes the
// response.
type Server struct {
	addr     string
	registry *ZoneRegistry

	singleResolver    *CachedSingleRBLResolver
	aggregateExecutor *AggregateExecutor
	customStore       *CustomRBLStore
	forwarder         *Forwarder

	udp *dns.Server
	tcp *dns.Server
}

// NewServer wires the four query-handling components behind a zone
// registry and binds them to addr (host:port) on both UDP and TCP.
func NewServer(addr string, registry *ZoneRegistry, singleResolver *CachedSingleRBLResolver, aggregateExecutor *AggregateExecutor, customStore *CustomRBLStore, forwarder *Forwarder) *Server {
	s := &Server{
		addr:              addr,
		registry:          registry,
		singleResolver:    singleResolver,
		aggregateExecutor: aggregateExecutor,
		customStore:       customStore,
		forwarder:         forwarder,
	}
	s.udp = &dns.Server{Addr: addr, Net: "udp", Handler: s.handler("udp")}
	s.tcp = &dns.Server{Addr: addr, Net: "tcp", Handler: s.handler("tcp")}
	return s
}

// ListenAndServe starts both listeners and blocks until one of them fails.
func (s *Server) ListenAndServe() error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.udp.ListenAndServe() }()
	go func() { errCh <- s.tcp.ListenAndServe() }()
	return <-errCh
}

// Shutdown gracefully stops both listeners, letting in-flight requests
// finish within their existing deadlines.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.udp.ShutdownContext(ctx); err != nil {
		return err
	}
	return s.tcp.ShutdownContext(ctx)
}

func (s *Server) handler(protocol string) dns.HandlerFunc {
	metrics := newServerMetrics(protocol)
	return func(w dns.ResponseWriter, req *dns.Msg) {
		metrics.query.Add(1)

		ci := ClientInfo{Listener: protocol}
		switch addr := w.RemoteAddr().(type) {
		case *net.TCPAddr:
			ci.SourceIP = addr.IP
		case *net.UDPAddr:
			ci.SourceIP = addr.IP
		}

		a := s.answer(req, ci)

		if protocol == "udp" {
			maxSize := dns.MinMsgSize
			if edns0 := req.IsEdns0(); edns0 != nil {
				maxSize = int(edns0.UDPSize())
			}
			a.Truncate(maxSize)
		}

		metrics.response.Add(rCode(a), 1)
		if err := w.WriteMsg(a); err != nil {
			metrics.errors.Add("write", 1)
			Log.WithError(err).Debug("failed to write DNS response")
		}
	}
}

// answer implements the per-request routing: extract (qname, qtype),
// classify via the zone registry, dispatch to the matching handler, and
// build the response. A single question per message is served; a message
// with zero or several questions is answered with SERVFAIL.
func (s *Server) answer(req *dns.Msg, ci ClientInfo) *dns.Msg {
	if len(req.Question) != 1 {
		return servfail(req)
	}

	class := s.registry.Classify(qName(req))

	switch class.Class {
	case ClassSingleRBL:
		return s.answerSingleRBL(req, class)
	case ClassAggregate:
		return s.answerAggregate(req, class)
	case ClassCustomRBL:
		return s.answerCustomRBL(req, class)
	default:
		return s.forwarder.Forward(context.Background(), req, ci)
	}
}

func (s *Server) answerSingleRBL(req *dns.Msg, class Classification) *dns.Msg {
	switch qType(req) {
	case dns.TypeA, dns.TypeTXT:
	case dns.TypeAAAA:
		// AAAA under an RBL zone is no-data (RFC 2308), not "not listed".
		return noerrorEmpty(req)
	default:
		return nxdomain(req)
	}

	ip, ok := reverseAddrFromPrefix(class.Reverse)
	if !ok {
		return nxdomain(req)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultSingleRBLTimeout)
	defer cancel()
	result := s.singleResolver.Lookup(ctx, ip, class.RBL)

	switch result.Listed {
	case Listed:
		if qType(req) == dns.TypeTXT {
			return noerrorTXT(req, []string{"Listed on " + class.RBL.Name}, result.TTL)
		}
		return noerrorA(req, result.Response, result.TTL)
	case NotListed:
		return nxdomain(req)
	default:
		return servfail(req)
	}
}

func (s *Server) answerAggregate(req *dns.Msg, class Classification) *dns.Msg {
	ip, ok := reverseAddrFromQName(req, class.Zone.Domain)
	if !ok {
		return nxdomain(req)
	}

	rbls := make([]RBL, 0, len(class.Zone.Rbls))
	for _, host := range class.Zone.Rbls {
		rbls = append(rbls, RBL{Name: host, Host: host})
	}

	outcome := s.aggregateExecutor.Run(context.Background(), ip, class.Zone, rbls)
	return BuildResponse(req, outcome)
}

func (s *Server) answerCustomRBL(req *dns.Msg, class Classification) *dns.Msg {
	ip, ok := reverseAddrFromPrefix(class.Reverse)
	if !ok {
		return nxdomain(req)
	}

	result := s.customStore.Check(ip)
	if !result.Listed {
		return nxdomain(req)
	}

	if qType(req) == dns.TypeTXT {
		reason := result.Reason
		if reason == "" {
			reason = "Listed in custom blocklist"
		}
		return noerrorTXT(req, []string{reason}, notListedTTL)
	}
	return noerrorA(req, result.Response, notListedTTL)
}

// reverseAddrFromPrefix parses a reverse-form IP prefix already stripped
// of its zone suffix by the registry.
func reverseAddrFromPrefix(prefix string) (net.IP, bool) {
	if ip, ok := parseReverseIPv4(prefix); ok {
		return ip, true
	}
	return parseReverseIPv6(prefix)
}

// reverseAddrFromQName re-derives the reverse prefix for an aggregate
// match, which the registry doesn't strip since aggregate zones aren't
// classified by reverse-IP parsing alone.
func reverseAddrFromQName(req *dns.Msg, zoneDomain string) (net.IP, bool) {
	return parseReverse(qName(req), zoneDomain)
}
