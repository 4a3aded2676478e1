package dhcp6

import (
	"context"
	"net"

	"golang.org/x/net/ipv6"

	"github.com/flowdns/flowdns/internal/dhcp6wire"
	"github.com/flowdns/flowdns/internal/model"
)

func (s *Server) handlePacket(ctx context.Context, data []byte, cm *ipv6.ControlMessage, peer *net.UDPAddr) {
	req, err := dhcp6wire.Parse(data)
	if err != nil {
		s.log.WithError(err).Debug("dropping malformed packet")
		return
	}
	duid := req.ClientDUID()
	if duid == nil {
		s.log.Debug("dropping packet with no client DUID")
		return
	}

	subnet, ok := s.Subnets.Locate(peer.IP)
	if !ok {
		s.log.WithField("peer", peer.String()).Debug("dropping packet, no matching subnet")
		return
	}

	switch req.Type {
	case dhcp6wire.MessageTypeSolicit:
		s.handleSolicit(ctx, req, subnet, duid, cm, peer)
	case dhcp6wire.MessageTypeRequest, dhcp6wire.MessageTypeRenew,
		dhcp6wire.MessageTypeRebind, dhcp6wire.MessageTypeConfirm:
		s.handleCommit(ctx, req, subnet, duid, cm, peer)
	case dhcp6wire.MessageTypeRelease:
		s.handleRelease(ctx, req, duid)
	case dhcp6wire.MessageTypeInformationRequest:
		s.handleInformationRequest(req, subnet, cm, peer)
	default:
		// ADVERTISE/REPLY/DECLINE/RECONFIGURE received from a client are ignored.
	}
}

func (s *Server) handleSolicit(ctx context.Context, req *dhcp6wire.Packet, subnet model.Subnet, duid []byte, cm *ipv6.ControlMessage, peer *net.UDPAddr) {
	resp := newReply(req, dhcp6wire.MessageTypeAdvertise, s.ServerDUID)
	addConfigOptions(resp, subnet)

	pool, hasPool := s.V6Pools[subnet.ID]
	for _, opt := range req.Options {
		if opt.Code != dhcp6wire.OptIANA {
			continue
		}
		ia, ok := dhcp6wire.ParseIANA(opt.Data)
		if !ok {
			continue
		}
		if !hasPool {
			addIANA(resp, ia.IAID, nil, 0)
			continue
		}
		res, err := offerIANA(ctx, s.AddrAlloc, pool, duid, ia.Addr)
		if err != nil || res.IP == nil {
			addIANA(resp, ia.IAID, nil, 0)
			continue
		}
		addIANA(resp, ia.IAID, res.IP, s.LeaseTime)
	}

	pdAlloc, hasPD := s.PDAllocators[subnet.ID]
	for _, opt := range req.Options {
		if opt.Code != dhcp6wire.OptIAPD {
			continue
		}
		iapd, ok := dhcp6wire.ParseIAPD(opt.Data)
		if !ok || !hasPD {
			if ok {
				addIAPD(resp, iapd.IAID, nil)
			}
			continue
		}
		d, status := commitIAPD(ctx, s.Store, pdAlloc, iapd, duid, s.now())
		if status != dhcp6wire.StatusSuccess {
			addIAPD(resp, iapd.IAID, nil)
			continue
		}
		if s.OnDelegationIssued != nil {
			s.OnDelegationIssued()
		}
		addIAPD(resp, iapd.IAID, d)
	}

	setStatus(resp, dhcp6wire.StatusSuccess, "")
	s.send(resp, peer, cm)
}

func (s *Server) handleCommit(ctx context.Context, req *dhcp6wire.Packet, subnet model.Subnet, duid []byte, cm *ipv6.ControlMessage, peer *net.UDPAddr) {
	resp := newReply(req, dhcp6wire.MessageTypeReply, s.ServerDUID)
	addConfigOptions(resp, subnet)
	now := s.now()
	allOK := true

	pool, hasPool := s.V6Pools[subnet.ID]
	for _, opt := range req.Options {
		if opt.Code != dhcp6wire.OptIANA {
			continue
		}
		ia, ok := dhcp6wire.ParseIANA(opt.Data)
		if !ok {
			continue
		}
		if !hasPool || ia.Addr == nil {
			addIANA(resp, ia.IAID, nil, 0)
			allOK = false
			continue
		}
		l, ack, err := commitIANA(ctx, s.Store, s.AddrAlloc, pool, duid, ia.Addr, now, s.LeaseTime)
		if err != nil || !ack {
			addIANA(resp, ia.IAID, nil, 0)
			allOK = false
			continue
		}
		addIANA(resp, ia.IAID, l.IP, s.LeaseTime)
	}

	pdAlloc, hasPD := s.PDAllocators[subnet.ID]
	for _, opt := range req.Options {
		if opt.Code != dhcp6wire.OptIAPD {
			continue
		}
		iapd, ok := dhcp6wire.ParseIAPD(opt.Data)
		if !ok || !hasPD {
			if ok {
				addIAPD(resp, iapd.IAID, nil)
				allOK = false
			}
			continue
		}
		d, status := commitIAPD(ctx, s.Store, pdAlloc, iapd, duid, now)
		if status != dhcp6wire.StatusSuccess {
			addIAPD(resp, iapd.IAID, nil)
			allOK = false
			continue
		}
		if s.OnDelegationIssued != nil {
			s.OnDelegationIssued()
		}
		addIAPD(resp, iapd.IAID, d)
	}

	if allOK {
		setStatus(resp, dhcp6wire.StatusSuccess, "")
	} else {
		setStatus(resp, dhcp6wire.StatusNoBinding, "")
	}
	s.send(resp, peer, cm)
}

func (s *Server) handleRelease(ctx context.Context, req *dhcp6wire.Packet, duid []byte) {
	for _, opt := range req.Options {
		switch opt.Code {
		case dhcp6wire.OptIANA:
			ia, ok := dhcp6wire.ParseIANA(opt.Data)
			if ok && ia.Addr != nil {
				if _, err := releaseIANA(ctx, s.Store, duid, ia.Addr); err != nil {
					s.log.WithError(err).Warn("release failed")
				}
			}
		case dhcp6wire.OptIAPD:
			iapd, ok := dhcp6wire.ParseIAPD(opt.Data)
			if ok {
				if err := releaseIAPD(ctx, s.Store, duid, iapd.IAID); err != nil {
					s.log.WithError(err).Warn("release delegated prefix failed")
				}
			}
		}
	}
}

func (s *Server) handleInformationRequest(req *dhcp6wire.Packet, subnet model.Subnet, cm *ipv6.ControlMessage, peer *net.UDPAddr) {
	resp := newReply(req, dhcp6wire.MessageTypeReply, s.ServerDUID)
	addConfigOptions(resp, subnet)
	s.send(resp, peer, cm)
}
