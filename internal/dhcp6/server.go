// Package dhcp6 implements the DHCPv6 engine (spec §4.5): a UDP/547
// listener joined to the All_DHCP_Relay_Agents_and_Servers multicast
// group, IA_NA stateful-address assignment and IA_PD prefix delegation.
package dhcp6

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/insomniacslk/dhcp/iana"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv6"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/clock"
	"github.com/flowdns/flowdns/internal/dhcp6wire"
	"github.com/flowdns/flowdns/internal/logger"
	"github.com/flowdns/flowdns/internal/store"
)

// MaxDatagram bounds the receive buffer, matching internal/dhcp4.
const MaxDatagram = 1 << 16

// AllDHCPRelayAgentsAndServers is the standard DHCPv6 multicast group
// (RFC 8415 §7.1) servers must join to receive client multicasts.
const AllDHCPRelayAgentsAndServers = "ff02::1:2"

// Server is the DHCPv6 listener and IA_NA/IA_PD state-machine driver.
type Server struct {
	Addr         *net.UDPAddr
	Subnets      *SubnetSet
	Store        store.Store
	Clock        clock.Clock
	AddrAlloc    *allocator.AddressAllocatorV6
	V6Pools      map[uuid.UUID]allocator.V6Pool
	PDAllocators map[uuid.UUID]*allocator.PDAllocator
	ServerDUID   []byte
	LeaseTime    time.Duration

	// OnDelegationIssued, if set, is called every time an IA_PD prefix is
	// successfully committed. internal/metrics wires this to its delegation
	// counter; nil skips the observation.
	OnDelegationIssued func()

	log  *logrus.Entry
	conn *ipv6.PacketConn
}

// NewServer constructs a Server bound to addr (e.g. "[::]:547").
func NewServer(addr *net.UDPAddr, subnets *SubnetSet, st store.Store, clk clock.Clock, addrAlloc *allocator.AddressAllocatorV6, v6Pools map[uuid.UUID]allocator.V6Pool, pdAllocators map[uuid.UUID]*allocator.PDAllocator, serverDUID []byte, leaseTime time.Duration) *Server {
	return &Server{
		Addr:         addr,
		Subnets:      subnets,
		Store:        st,
		Clock:        clk,
		AddrAlloc:    addrAlloc,
		V6Pools:      v6Pools,
		PDAllocators: pdAllocators,
		ServerDUID:   serverDUID,
		LeaseTime:    leaseTime,
		log:          logger.GetLogger("dhcp6"),
	}
}

func (s *Server) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

// StableLinkLayerAddr picks the first non-loopback interface's hardware
// address, used as the DUID-LLT's link-layer component at startup.
func StableLinkLayerAddr() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("dhcp6: list interfaces: %w", err)
	}
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagLoopback != 0 || len(ifi.HardwareAddr) != 6 {
			continue
		}
		return ifi.HardwareAddr, nil
	}
	return nil, fmt.Errorf("dhcp6: no suitable interface found for a DUID-LLT")
}

// NewServerDUID builds the process's DUID-LLT, generated once per spec.md
// §4.5 from the current time and a stable layer-2 address.
func NewServerDUID(at time.Time) ([]byte, error) {
	mac, err := StableLinkLayerAddr()
	if err != nil {
		return nil, err
	}
	const hwTypeEthernet = uint16(iana.HWTypeEthernet)
	return dhcp6wire.BuildDUIDLLT(hwTypeEthernet, mac, at), nil
}

func listen(addr *net.UDPAddr) (*ipv6.PacketConn, error) {
	udpConn, err := net.ListenUDP("udp6", addr)
	if err != nil {
		return nil, fmt.Errorf("dhcp6: listen: %w", err)
	}
	pc := ipv6.NewPacketConn(udpConn)
	if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("dhcp6: SetControlMessage: %w", err)
	}

	group := net.ParseIP(AllDHCPRelayAgentsAndServers)
	ifaces, err := net.Interfaces()
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("dhcp6: list interfaces: %w", err)
	}
	joined := 0
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group}); err == nil {
			joined++
		}
	}
	if joined == 0 {
		pc.Close()
		return nil, fmt.Errorf("dhcp6: could not join %s on any interface", AllDHCPRelayAgentsAndServers)
	}
	return pc, nil
}

// ListenAndServe binds the socket and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := listen(s.Addr)
	if err != nil {
		return err
	}
	s.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.WithField("addr", s.Addr.String()).Info("listening")
	buf := make([]byte, MaxDatagram)
	for {
		n, cm, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("dhcp6: read: %w", err)
		}
		data := append([]byte(nil), buf[:n]...)
		udpPeer, _ := peer.(*net.UDPAddr)
		go s.handlePacket(ctx, data, cm, udpPeer)
	}
}

func (s *Server) send(resp *dhcp6wire.Packet, to *net.UDPAddr, cm *ipv6.ControlMessage) {
	var woob *ipv6.ControlMessage
	if cm != nil && cm.IfIndex != 0 {
		woob = &ipv6.ControlMessage{IfIndex: cm.IfIndex}
	}
	if _, err := s.conn.WriteTo(resp.ToBytes(), woob, to); err != nil {
		s.log.WithError(err).WithField("to", to.String()).Warn("write reply failed")
	}
}
