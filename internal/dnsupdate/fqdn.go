// Package dnsupdate implements the DynamicUpdater (spec §4.6-4.7):
// translating LeaseEvents into forward and reverse DNS record
// mutations using miekg/dns for RR construction and name
// normalization.
package dnsupdate

import (
	"strings"

	"github.com/miekg/dns"
)

// ComputeFQDN builds the fully-qualified, dot-terminated name a lease's
// hostname maps to: hostname unchanged if it already contains a '.',
// otherwise hostname.domain. Returns "" if hostname is empty -- callers
// treat an empty hostname as a no-op (spec.md §4.6).
func ComputeFQDN(hostname, domain string) string {
	if hostname == "" {
		return ""
	}
	if strings.Contains(hostname, ".") {
		return dns.Fqdn(hostname)
	}
	return dns.Fqdn(hostname + "." + domain)
}
