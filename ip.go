package rbld

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// canonicalIP returns the canonical string form of ip used as the cache
// key's identity: dotted-decimal for IPv4, fully-expanded lowercase hex
// with four digits per group for IPv6. Two lexical representations of the same
// address always produce the same canonical form, so they collide as cache
// keys as required by the cache entry invariants.
func canonicalIP(ip net.IP) string {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.String()
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return ip.String()
	}
	var b strings.Builder
	for i, seg := range ip16 {
		if i > 0 && i%2 == 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02x", seg)
	}
	return b.String()
}

// reverseIPv4 returns the reverse-octet form of a dotted-decimal IPv4
// address, e.g. reverseIPv4(net.IPv4(127,0,0,2)) == "2.0.0.127".
func reverseIPv4(ip net.IP) (string, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d.%d", ip4[3], ip4[2], ip4[1], ip4[0]), true
}

// reverseIPv6 expands an IPv6 address to its 32 lowercase nibbles and emits
// them dot-joined in reverse order, the form used under ip6.arpa and
// accepted as the DNSBL reverse-form for v6 clients.
func reverseIPv6(ip net.IP) (string, bool) {
	ip16 := ip.To16()
	if ip16 == nil || ip.To4() != nil {
		return "", false
	}
	nibbles := make([]byte, 0, 32)
	for _, b := range ip16 {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	parts := make([]string, 0, 32)
	for i := len(nibbles) - 1; i >= 0; i-- {
		parts = append(parts, strconv.FormatUint(uint64(nibbles[i]), 16))
	}
	return strings.Join(parts, "."), true
}

// reverseIP dispatches to reverseIPv4 or reverseIPv6 based on the address
// family of ip.
func reverseIP(ip net.IP) (string, bool) {
	if ip.To4() != nil {
		return reverseIPv4(ip)
	}
	return reverseIPv6(ip)
}

// parseReverse strips suffix (and its separating dot) from name and parses
// the remainder as a reverse-form IPv4 or IPv6 address, returning it in
// canonical form. It returns ok=false if name does not end with suffix, or
// the remainder isn't a well-formed reverse address.
func parseReverse(name, suffix string) (ip net.IP, ok bool) {
	name = strings.TrimSuffix(name, ".")
	suffix = strings.TrimSuffix(suffix, ".")
	if suffix == "" {
		return nil, false
	}
	if !strings.HasSuffix(name, suffix) {
		return nil, false
	}
	prefix := strings.TrimSuffix(name, suffix)
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		return nil, false
	}
	if ip, ok := parseReverseIPv4(prefix); ok {
		return ip, true
	}
	return parseReverseIPv6(prefix)
}

// parseReverseIPv4 accepts 4 dotted octets, each in [0,255], in wire
// (reversed) order and returns the canonical (forward) address.
func parseReverseIPv4(prefix string) (net.IP, bool) {
	labels := strings.Split(prefix, ".")
	if len(labels) != 4 {
		return nil, false
	}
	octets := make([]byte, 4)
	for i, l := range labels {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 || n > 255 || (len(l) > 1 && l[0] == '0') {
			return nil, false
		}
		// reversed wire order -> forward order
		octets[3-i] = byte(n)
	}
	return net.IPv4(octets[0], octets[1], octets[2], octets[3]), true
}

// parseReverseIPv6 accepts 32 dot-joined lowercase hex nibbles in reversed
// (wire) order and returns the canonical (forward) address.
func parseReverseIPv6(prefix string) (net.IP, bool) {
	labels := strings.Split(prefix, ".")
	if len(labels) != 32 {
		return nil, false
	}
	nibbles := make([]byte, 32)
	for i, l := range labels {
		if len(l) != 1 {
			return nil, false
		}
		v, err := strconv.ParseUint(l, 16, 8)
		if err != nil {
			return nil, false
		}
		nibbles[31-i] = byte(v)
	}
	ip := make(net.IP, 16)
	for i := 0; i < 16; i++ {
		ip[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
	return ip, true
}
