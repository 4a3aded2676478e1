package lease

import (
	"net"
	"strings"
)

// synthesizeHostname expands a subnet's hostname_template against ip,
// substituting {ip} (dotted form), {ip_dash} (dots replaced with dashes)
// and {ip_last} (final octet). An empty template yields an empty
// hostname, which the DNS updater treats as a no-op record.
func synthesizeHostname(template string, ip net.IP) string {
	if template == "" {
		return ""
	}
	dotted := ip.String()
	dashed := strings.ReplaceAll(dotted, ".", "-")
	last := dotted
	if i := strings.LastIndexByte(dotted, '.'); i >= 0 {
		last = dotted[i+1:]
	}
	r := strings.NewReplacer(
		"{ip}", dotted,
		"{ip_dash}", dashed,
		"{ip_last}", last,
	)
	return r.Replace(template)
}
