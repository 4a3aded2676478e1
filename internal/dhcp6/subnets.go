package dhcp6

import (
	"net"
	"sync"

	"github.com/flowdns/flowdns/internal/model"
)

// SubnetSet is the IPv6 analogue of dhcp4.SubnetSet: a read-mostly,
// atomically swappable view of the subnets enabled for IPv6 service,
// matched by which subnet's IPv6Prefix contains the client's source
// address (DHCPv6 has no giaddr; FlowDNS's codec never decodes the relay
// encapsulation envelope, so every datagram this server sees already
// carries the client's own source address).
type SubnetSet struct {
	mu      sync.RWMutex
	subnets []model.Subnet
}

// NewSubnetSet constructs a SubnetSet from subnets that carry a non-nil
// IPv6Prefix.
func NewSubnetSet(subnets []model.Subnet) *SubnetSet {
	return &SubnetSet{subnets: append([]model.Subnet(nil), subnets...)}
}

// Swap atomically replaces the subnet list, e.g. on admin reload.
func (s *SubnetSet) Swap(subnets []model.Subnet) {
	cp := append([]model.Subnet(nil), subnets...)
	s.mu.Lock()
	s.subnets = cp
	s.mu.Unlock()
}

// All returns a snapshot of the current subnets.
func (s *SubnetSet) All() []model.Subnet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Subnet(nil), s.subnets...)
}

// Locate returns the enabled subnet whose IPv6Prefix contains source.
func (s *SubnetSet) Locate(source net.IP) (model.Subnet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sn := range s.subnets {
		if !sn.Enabled || sn.IPv6Prefix == nil {
			continue
		}
		if sn.IPv6Prefix.Contains(source) {
			return sn, true
		}
	}
	return model.Subnet{}, false
}
