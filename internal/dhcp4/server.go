// Package dhcp4 implements the DHCPv4 engine (spec §4.4/§6): a UDP/67
// listener with broadcast capability, per-datagram dispatch, and the
// DISCOVER/REQUEST/RELEASE/DECLINE/INFORM handlers driving internal/lease.
package dhcp4

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/dhcp4wire"
	"github.com/flowdns/flowdns/internal/lease"
	"github.com/flowdns/flowdns/internal/logger"
	"github.com/flowdns/flowdns/internal/model"
)

// MaxDatagram bounds the receive buffer, matching server/serve.go's choice.
const MaxDatagram = 1 << 16

// Server is the DHCPv4 listener and state-machine driver.
type Server struct {
	Addr       *net.UDPAddr
	Subnets    *SubnetSet
	Lease      *lease.Manager
	Allocators map[uuid.UUID]*allocator.AddressAllocator
	ServerID   net.IP

	// OnNAK and OnPoolExhausted, if set, are called on every DHCPNAK sent
	// and every pool-exhausted allocation attempt respectively.
	// internal/metrics wires these to its counters; nil is valid and
	// skips the observation.
	OnNAK           func()
	OnPoolExhausted func(subnet model.Subnet)

	log  *logrus.Entry
	conn *ipv4.PacketConn
}

// NewServer constructs a Server bound to addr (e.g. ":67").
func NewServer(addr *net.UDPAddr, subnets *SubnetSet, lm *lease.Manager, allocators map[uuid.UUID]*allocator.AddressAllocator, serverID net.IP) *Server {
	return &Server{
		Addr:       addr,
		Subnets:    subnets,
		Lease:      lm,
		Allocators: allocators,
		ServerID:   serverID,
		log:        logger.GetLogger("dhcp4"),
	}
}

// listen opens a UDPv4 socket with SO_REUSEADDR and SO_BROADCAST set --
// net.ListenUDP provides neither, so this drops to golang.org/x/sys/unix
// directly, the same broadcast-capable-socket requirement server/serve.go
// satisfies via insomniacslk/dhcp/dhcpv4/server4.NewIPv4UDPConn.
func listen(addr *net.UDPAddr) (*ipv4.PacketConn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("dhcp4: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dhcp4: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dhcp4: SO_BROADCAST: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	if ip4 := addr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("dhcp4: bind: %w", err)
	}

	f := os.NewFile(uintptr(fd), "dhcp4-listener")
	conn, err := net.FilePacketConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("dhcp4: FilePacketConn: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("dhcp4: SetControlMessage: %w", err)
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
			return fmt.Errorf("dhcp4: read: %w", err)
		}
		data := append([]byte(nil), buf[:n]...)
		udpPeer, _ := peer.(*net.UDPAddr)
		go s.handlePacket(ctx, data, cm, udpPeer)
	}
}

func (s *Server) send(resp *dhcp4wire.Packet, to *net.UDPAddr, cm *ipv4.ControlMessage) {
	var woob *ipv4.ControlMessage
	if cm != nil && cm.IfIndex != 0 {
		woob = &ipv4.ControlMessage{IfIndex: cm.IfIndex}
	}
	if _, err := s.conn.WriteTo(resp.ToBytes(), woob, to); err != nil {
		s.log.WithError(err).WithField("to", to.String()).Warn("write reply failed")
	}
}
