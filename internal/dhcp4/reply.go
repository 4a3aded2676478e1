package dhcp4

import (
	"net"
	"time"

	"github.com/flowdns/flowdns/internal/dhcp4wire"
	"github.com/flowdns/flowdns/internal/model"
)

// buildConfigOptions appends the configuration options every reply type
// carries (table in spec §6): subnet mask, router, broadcast address, DNS
// servers, domain name.
func buildConfigOptions(resp *dhcp4wire.Packet, subnet model.Subnet) {
	resp.SetSubnetMask(subnet.Network.Mask)
	if subnet.Gateway != nil && !subnet.Gateway.IsUnspecified() {
		resp.SetRouters([]net.IP{subnet.Gateway})
	}
	resp.SetBroadcastAddress(subnet.BroadcastAddr())
	if len(subnet.DNSServers) > 0 {
		resp.SetDNSServers(subnet.DNSServers)
	}
	if subnet.DomainName != "" {
		resp.SetDomainName(subnet.DomainName)
	}
}

// buildLeaseTiming sets lease time, T1 = lease/2, T2 = lease*7/8 (spec §4.4).
func buildLeaseTiming(resp *dhcp4wire.Packet, leaseDuration time.Duration) {
	secs := uint32(leaseDuration / time.Second)
	resp.SetLeaseTime(secs)
	resp.SetRenewalT1(secs / 2)
	resp.SetRebindingT2(secs * 7 / 8)
}

// newOfferOrAck builds an OFFER or ACK carrying yiaddr, full configuration
// options and lease timing, and the server identifier.
func newOfferOrAck(req *dhcp4wire.Packet, subnet model.Subnet, serverID net.IP, yiaddr net.IP, mt dhcp4wire.MessageType) *dhcp4wire.Packet {
	resp := dhcp4wire.NewReplyFromRequest(req)
	resp.YIAddr = yiaddr
	resp.SetMessageType(mt)
	resp.SetServerIdentifier(serverID)
	buildConfigOptions(resp, subnet)
	buildLeaseTiming(resp, subnet.LeaseDuration)
	return resp
}

// newNak builds a NAK: message type and server identifier only.
func newNak(req *dhcp4wire.Packet, serverID net.IP) *dhcp4wire.Packet {
	resp := dhcp4wire.NewReplyFromRequest(req)
	resp.SetMessageType(dhcp4wire.MessageTypeNak)
	resp.SetServerIdentifier(serverID)
	return resp
}

// newInformAck builds the INFORM reply: configuration options only,
// yiaddr left at zero, no lease timing (spec §4.4: "no lease state is
// modified").
func newInformAck(req *dhcp4wire.Packet, subnet model.Subnet, serverID net.IP) *dhcp4wire.Packet {
	resp := dhcp4wire.NewReplyFromRequest(req)
	resp.YIAddr = net.IPv4zero
	resp.SetMessageType(dhcp4wire.MessageTypeAck)
	resp.SetServerIdentifier(serverID)
	buildConfigOptions(resp, subnet)
	return resp
}

// replyDestination implements the reply addressing rule (spec §4.4/§6):
// relay replies always go to giaddr:67; NAKs and clients without a usable
// ciaddr get broadcast to 255.255.255.255:68; a client renewing with a
// valid ciaddr gets a unicast reply. FlowDNS does not implement
// ARP-injection unicast to yiaddr for unconfigured clients that clear the
// broadcast flag -- the spec explicitly allows falling back to broadcast
// in that case, since such clients also set the flag in practice.
func replyDestination(req, resp *dhcp4wire.Packet) *net.UDPAddr {
	if !req.GIAddr.IsUnspecified() {
		return &net.UDPAddr{IP: req.GIAddr, Port: 67}
	}
	if resp.MessageType() == dhcp4wire.MessageTypeNak {
		return &net.UDPAddr{IP: net.IPv4bcast, Port: 68}
	}
	if !req.CIAddr.IsUnspecified() {
		return &net.UDPAddr{IP: req.CIAddr, Port: 68}
	}
	return &net.UDPAddr{IP: net.IPv4bcast, Port: 68}
}
