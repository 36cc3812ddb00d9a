package rbld

import "net"

// ClientInfo carries request-scoped metadata through to logging and
// metrics. It is built once per inbound request by the DNS server and
// threaded through to whichever component handles it.
type ClientInfo struct {
	// SourceIP is the querying client's address.
	SourceIP net.IP
	// Listener is the id of the listener (udp/tcp) that accepted the query.
	Listener string
}
