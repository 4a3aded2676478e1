package dhcp4wire

import (
	"encoding/binary"
	"net"
)

// ipListBytes flattens a list of IPv4 addresses into a single option payload.
func ipListBytes(ips []net.IP) []byte {
	buf := make([]byte, 0, 4*len(ips))
	for _, ip := range ips {
		buf = append(buf, to4(ip)...)
	}
	return buf
}

// SetSubnetMask sets option 1 from a CIDR mask.
func (p *Packet) SetSubnetMask(mask net.IPMask) {
	p.SetOption(OptSubnetMask, append([]byte(nil), mask...))
}

// SetRouters sets option 3.
func (p *Packet) SetRouters(routers []net.IP) {
	p.SetOption(OptRouter, ipListBytes(routers))
}

// SetDNSServers sets option 6.
func (p *Packet) SetDNSServers(servers []net.IP) {
	p.SetOption(OptDomainNameServer, ipListBytes(servers))
}

// SetDomainName sets option 15.
func (p *Packet) SetDomainName(name string) {
	if name == "" {
		return
	}
	p.SetOption(OptDomainName, []byte(name))
}

// SetBroadcastAddress sets option 28.
func (p *Packet) SetBroadcastAddress(ip net.IP) {
	p.SetOption(OptBroadcastAddress, to4(ip))
}

// SetRenewalT1 sets option 58 (seconds).
func (p *Packet) SetRenewalT1(seconds uint32) {
	p.SetOption(OptRenewalTimeT1, binary.BigEndian.AppendUint32(nil, seconds))
}

// SetRebindingT2 sets option 59 (seconds).
func (p *Packet) SetRebindingT2(seconds uint32) {
	p.SetOption(OptRebindingTimeT2, binary.BigEndian.AppendUint32(nil, seconds))
}

// NewReplyFromRequest builds the skeleton BOOTREPLY for req: op=BOOTREPLY,
// same xid/flags/giaddr/chaddr, htype/hlen copied, hops left 0, and nothing else
// populated yet. Callers append options in the order required by the reply
// ordering guarantee (message type before address options, server
// identifier before lease time).
func NewReplyFromRequest(req *Packet) *Packet {
	resp := New()
	resp.Op = OpcodeBootReply
	resp.HType = req.HType
	resp.HLen = req.HLen
	resp.Xid = req.Xid
	resp.Flags = req.Flags
	resp.GIAddr = req.GIAddr
	resp.CHAddr = req.CHAddr
	return resp
}
