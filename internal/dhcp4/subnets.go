package dhcp4

import (
	"net"
	"sync"

	"github.com/flowdns/flowdns/internal/model"
)

// SubnetSet is the read-mostly, atomically-swappable subnet map the
// functional spec requires ("updates happen only on admin reload and must
// be atomic-swap; readers never see a partial subnet").
type SubnetSet struct {
	mu      sync.RWMutex
	subnets []model.Subnet
}

// NewSubnetSet constructs a SubnetSet from an initial load.
func NewSubnetSet(subnets []model.Subnet) *SubnetSet {
	s := &SubnetSet{}
	s.Swap(subnets)
	return s
}

// Swap atomically replaces the whole subnet list.
func (s *SubnetSet) Swap(subnets []model.Subnet) {
	cp := append([]model.Subnet(nil), subnets...)
	s.mu.Lock()
	s.subnets = cp
	s.mu.Unlock()
}

// All returns a snapshot of every subnet, enabled or not.
func (s *SubnetSet) All() []model.Subnet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Subnet(nil), s.subnets...)
}

// Locate implements the subnet location rule (spec §4.4): if giaddr is
// set, match the subnet whose network contains it; otherwise match the
// subnet whose network contains the datagram's source IP.
func (s *SubnetSet) Locate(giaddr, source net.IP) (model.Subnet, bool) {
	target := source
	if giaddr != nil && !giaddr.IsUnspecified() {
		target = giaddr
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sn := range s.subnets {
		if !sn.Enabled {
			continue
		}
		if sn.Network.Contains(target) {
			return sn, true
		}
	}
	return model.Subnet{}, false
}
