package dhcp6

import (
	"net"
	"time"

	"github.com/flowdns/flowdns/internal/dhcp6wire"
	"github.com/flowdns/flowdns/internal/model"
)

// newReply builds a bare response echoing req's transaction id and client
// DUID, and stamping serverDUID.
func newReply(req *dhcp6wire.Packet, msgType dhcp6wire.MessageType, serverDUID []byte) *dhcp6wire.Packet {
	resp := dhcp6wire.NewReplyFromRequest(req, msgType)
	if cid := req.ClientDUID(); cid != nil {
		resp.SetOption(dhcp6wire.OptClientID, cid)
	}
	resp.SetOption(dhcp6wire.OptServerID, serverDUID)
	return resp
}

// addConfigOptions attaches the DNS-server option (23) when the subnet
// configures one, per spec.md §4.5's SOLICIT/INFORMATION-REQUEST handling.
func addConfigOptions(resp *dhcp6wire.Packet, subnet model.Subnet) {
	if len(subnet.DNSServers) > 0 {
		resp.SetOption(dhcp6wire.OptDNSServers, dhcp6wire.BuildDNSServers(subnet.DNSServers).Data)
	}
}

// addIANA embeds an IA_NA carrying ip with T1=preferred/2, T2=preferred*3/4
// (spec.md §4.5); when ip is nil the IA_NA carries no address and the
// overall reply's status code communicates the failure.
func addIANA(resp *dhcp6wire.Packet, iaid uint32, ip net.IP, leaseDuration time.Duration) {
	if ip == nil {
		resp.SetOption(dhcp6wire.OptIANA, dhcp6wire.BuildIANA(iaid, 0, 0, net.IPv6zero, 0, 0).Data[:12])
		return
	}
	preferred := leaseDuration
	t1 := preferred / 2
	t2 := preferred * 3 / 4
	resp.SetOption(dhcp6wire.OptIANA, dhcp6wire.BuildIANA(iaid, t1, t2, ip, preferred, leaseDuration).Data)
}

// addIAPD embeds an IA_PD carrying d, or nothing beyond the IAID header
// when d is nil.
func addIAPD(resp *dhcp6wire.Packet, iaid uint32, d *model.DelegatedPrefix) {
	if d == nil {
		resp.SetOption(dhcp6wire.OptIAPD, dhcp6wire.BuildIAPD(iaid, 0, 0, nil).Data)
		return
	}
	t1 := d.PreferredLifetime / 2
	t2 := d.PreferredLifetime * 3 / 4
	payload := dhcp6wire.BuildIAPrefix(d.Prefix, d.PrefixLength, d.PreferredLifetime, d.ValidLifetime)
	resp.SetOption(dhcp6wire.OptIAPD, dhcp6wire.BuildIAPD(iaid, t1, t2, [][]byte{payload}).Data)
}

// setStatus attaches the overall reply status code (spec.md §4.5: value 0
// on commit).
func setStatus(resp *dhcp6wire.Packet, code uint16, message string) {
	opt := dhcp6wire.BuildStatusCode(code, message)
	resp.SetOption(opt.Code, opt.Data)
}
