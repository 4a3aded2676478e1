package dnsupdate

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
)

// PTRName computes the PTR record's own name (spec.md §4.7): all four
// IPv4 octets reversed, or the full 32-nibble IPv6 form reversed
// character-wise, each dot-terminated with the matching arpa suffix.
func PTRName(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa.", v4[3], v4[2], v4[1], v4[0])
	}
	return ipv6PTRName(ip)
}

func ipv6PTRName(ip net.IP) string {
	h := hex.EncodeToString(ip.To16())
	nibbles := make([]byte, len(h))
	for i := 0; i < len(h); i++ {
		nibbles[len(h)-1-i] = h[i]
	}
	parts := make([]string, len(nibbles))
	for i, c := range nibbles {
		parts[i] = string(c)
	}
	return strings.Join(parts, ".") + ".ip6.arpa."
}

// ReverseZoneName computes the delegated reverse zone covering ip, per
// spec.md §4.7's network_to_reverse_zone mapping: /24, /16 and /8 are
// honored exactly (3, 2, 1 octets reversed); any other IPv4 prefix length
// falls back to the enclosing /24. IPv6 zones are cut at the nearest
// 4-bit (nibble) boundary at or below prefixLen, since ip6.arpa zones are
// only ever delegated on nibble boundaries (RFC 3596) -- spec.md is silent
// on v6 zone granularity, so this resolves that silence the same way
// in-addr.arpa zones are cut on octet boundaries.
func ReverseZoneName(network net.IP, prefixLen int) string {
	if v4 := network.To4(); v4 != nil {
		n := 3
		switch prefixLen {
		case 8:
			n = 1
		case 16:
			n = 2
		case 24:
			n = 3
		}
		parts := make([]string, 0, n)
		for i := n - 1; i >= 0; i-- {
			parts = append(parts, fmt.Sprintf("%d", v4[i]))
		}
		return strings.Join(parts, ".") + ".in-addr.arpa."
	}

	nibbleCount := prefixLen / 4
	if nibbleCount > 32 {
		nibbleCount = 32
	}
	h := hex.EncodeToString(network.To16())[:nibbleCount]
	parts := make([]string, nibbleCount)
	for i := 0; i < nibbleCount; i++ {
		parts[nibbleCount-1-i] = string(h[i])
	}
	return strings.Join(parts, ".") + ".ip6.arpa."
}
