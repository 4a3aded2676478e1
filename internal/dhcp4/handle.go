package dhcp4

import (
	"context"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/dhcp4wire"
	"github.com/flowdns/flowdns/internal/model"
)

func (s *Server) handlePacket(ctx context.Context, data []byte, cm *ipv4.ControlMessage, peer *net.UDPAddr) {
	req, err := dhcp4wire.Parse(data)
	if err != nil {
		s.log.WithError(err).Debug("dropping malformed packet")
		return
	}
	if req.Op != dhcp4wire.OpcodeBootRequest {
		return
	}

	subnet, ok := s.Subnets.Locate(req.GIAddr, peer.IP)
	if !ok {
		s.log.WithField("peer", peer.String()).Debug("dropping packet, no matching subnet")
		return
	}
	alloc, ok := s.Allocators[subnet.ID]
	if !ok {
		s.log.WithField("subnet", subnet.ID).Warn("no allocator configured for subnet")
		return
	}

	mac := model.MACFromBytes(req.ClientMAC())

	switch req.MessageType() {
	case dhcp4wire.MessageTypeDiscover:
		s.handleDiscover(ctx, req, subnet, alloc, mac, cm, peer)
	case dhcp4wire.MessageTypeRequest:
		s.handleRequest(ctx, req, subnet, alloc, mac, cm, peer)
	case dhcp4wire.MessageTypeRelease:
		s.handleRelease(ctx, req, subnet, mac)
	case dhcp4wire.MessageTypeDecline:
		s.handleDecline(ctx, req, subnet, mac)
	case dhcp4wire.MessageTypeInform:
		s.handleInform(req, subnet, cm, peer)
	default:
		// OFFER/ACK/NAK/unknown received from a client are ignored.
	}
}

func (s *Server) handleDiscover(ctx context.Context, req *dhcp4wire.Packet, subnet model.Subnet, alloc *allocator.AddressAllocator, mac model.MAC, cm *ipv4.ControlMessage, peer *net.UDPAddr) {
	res, err := s.Lease.Discover(ctx, subnet, alloc, mac, req.RequestedIP())
	if err != nil {
		s.log.WithError(err).Warn("discover: allocation failed")
		return
	}
	if res.IP == nil {
		s.log.WithField("mac", mac.String()).Debug("discover: pool exhausted")
		if s.OnPoolExhausted != nil {
			s.OnPoolExhausted(subnet)
		}
		return
	}

	resp := newOfferOrAck(req, subnet, s.ServerID, res.IP, dhcp4wire.MessageTypeOffer)
	s.send(resp, replyDestination(req, resp), cm)
}

func (s *Server) handleRequest(ctx context.Context, req *dhcp4wire.Packet, subnet model.Subnet, alloc *allocator.AddressAllocator, mac model.MAC, cm *ipv4.ControlMessage, peer *net.UDPAddr) {
	target := req.RequestedIP()
	if target == nil {
		target = req.CIAddr
	}
	if target == nil || target.IsUnspecified() {
		s.log.WithField("mac", mac.String()).Debug("request: no target IP")
		return
	}

	l, ack, err := s.Lease.Request(ctx, subnet, alloc, mac, target, req.Hostname())
	if err != nil {
		s.log.WithError(err).Warn("request: allocation failed")
		return
	}

	var resp *dhcp4wire.Packet
	if !ack {
		resp = newNak(req, s.ServerID)
		if s.OnNAK != nil {
			s.OnNAK()
		}
	} else {
		resp = newOfferOrAck(req, subnet, s.ServerID, l.IP, dhcp4wire.MessageTypeAck)
	}
	s.send(resp, replyDestination(req, resp), cm)
}

func (s *Server) handleRelease(ctx context.Context, req *dhcp4wire.Packet, subnet model.Subnet, mac model.MAC) {
	if _, err := s.Lease.Release(ctx, subnet, mac, req.CIAddr); err != nil {
		s.log.WithError(err).Warn("release failed")
	}
}

func (s *Server) handleDecline(ctx context.Context, req *dhcp4wire.Packet, subnet model.Subnet, mac model.MAC) {
	ip := req.RequestedIP()
	if ip == nil {
		ip = req.CIAddr
	}
	if ip == nil || ip.IsUnspecified() {
		return
	}
	if err := s.Lease.Decline(ctx, subnet, mac, ip); err != nil {
		s.log.WithError(err).Warn("decline failed")
	}
}

func (s *Server) handleInform(req *dhcp4wire.Packet, subnet model.Subnet, cm *ipv4.ControlMessage, peer *net.UDPAddr) {
	resp := newInformAck(req, subnet, s.ServerID)
	s.send(resp, replyDestination(req, resp), cm)
}
