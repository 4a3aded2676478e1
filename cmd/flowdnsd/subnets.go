package main

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/flowdns/flowdns/internal/model"
)

// subnetIndex is the subset of a loaded configuration that lease.Manager
// and internal/dnsupdate need per subnet ID but that dhcp4.SubnetSet and
// dhcp6.SubnetSet don't expose directly (they only answer "locate by
// address"). Rebuilt and swapped in wholesale on every reload.
type subnetIndex struct {
	domain  map[uuid.UUID]string
	network map[uuid.UUID]net.IPNet
}

func newSubnetIndex(subnets []model.Subnet) *subnetIndex {
	idx := &subnetIndex{
		domain:  make(map[uuid.UUID]string, len(subnets)),
		network: make(map[uuid.UUID]net.IPNet, len(subnets)),
	}
	for _, sn := range subnets {
		idx.domain[sn.ID] = sn.DomainName
		idx.network[sn.ID] = sn.Network
	}
	return idx
}

// subnetIndexRef is an atomically-swappable pointer to the current
// subnetIndex, the same read-mostly/atomic-swap pattern dhcp4.SubnetSet and
// dhcp6.SubnetSet use for their own subnet lists (spec.md §9: "the
// in-memory subnet map is read-mostly; updates happen only on admin reload
// and must be atomic-swap").
type subnetIndexRef struct {
	v atomic.Pointer[subnetIndex]
}

func (r *subnetIndexRef) Swap(idx *subnetIndex) {
	r.v.Store(idx)
}

func (r *subnetIndexRef) Domain(id uuid.UUID) (string, bool) {
	idx := r.v.Load()
	if idx == nil {
		return "", false
	}
	d, ok := idx.domain[id]
	return d, ok
}

func (r *subnetIndexRef) Network(id uuid.UUID) (net.IPNet, bool) {
	idx := r.v.Load()
	if idx == nil {
		return net.IPNet{}, false
	}
	n, ok := idx.network[id]
	return n, ok
}
