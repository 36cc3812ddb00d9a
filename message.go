package rbld

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// sentinelListed is the fixed address returned for any "this address is
// listed" verdict that isn't an encoded RBL-specific response: aggregate
// zone matches and custom-RBL matches both answer with this address.
var sentinelListed = net.IPv4(127, 0, 0, 2).To4()

// qName returns the query name of a DNS message, or "" if it carries no
// question.
func qName(q *dns.Msg) string {
	if len(q.Question) == 0 {
		return ""
	}
	return q.Question[0].Name
}

// qType returns the query type of a DNS message, or 0 if it carries no
// question.
func qType(q *dns.Msg) uint16 {
	if len(q.Question) == 0 {
		return 0
	}
	return q.Question[0].Qtype
}

// nxdomain builds an authoritative NXDOMAIN reply to q.
func nxdomain(q *dns.Msg) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = true
	a.RecursionAvailable = false
	a.SetRcode(q, dns.RcodeNameError)
	return a
}

// servfail builds a SERVFAIL reply to q.
func servfail(q *dns.Msg) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = true
	a.RecursionAvailable = false
	a.SetRcode(q, dns.RcodeServerFailure)
	return a
}

// noerrorEmpty builds an authoritative NOERROR reply with no answer records,
// the RFC 2308 "no-data" response for a query type that the zone doesn't
// serve (e.g. AAAA under a single-RBL zone).
func noerrorEmpty(q *dns.Msg) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = true
	a.RecursionAvailable = false
	a.SetRcode(q, dns.RcodeSuccess)
	return a
}

// noerrorA builds an authoritative NOERROR reply carrying a single A record.
func noerrorA(q *dns.Msg, ip net.IP, ttl uint32) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = true
	a.RecursionAvailable = false
	a.Answer = []dns.RR{
		&dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Question[0].Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    ttl,
			},
			A: ip.To4(),
		},
	}
	return a
}

// noerrorTXT builds an authoritative NOERROR reply carrying one or more TXT
// records, each holding a single string.
func noerrorTXT(q *dns.Msg, texts []string, ttl uint32) *dns.Msg {
	a := new(dns.Msg)
	a.SetReply(q)
	a.Authoritative = true
	a.RecursionAvailable = false
	for _, t := range texts {
		a.Answer = append(a.Answer, &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   q.Question[0].Name,
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
				Ttl:    ttl,
			},
			Txt: []string{t},
		})
	}
	return a
}

func rCode(a *dns.Msg) string {
	if a == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", a.Rcode)
}
