// Package model holds the persisted entities FlowDNS's LeaseStore owns:
// subnets, reservations, leases, DNS zones/records, and IPv6 delegated
// prefixes. These are plain data structs; the invariants over them are
// enforced by the allocator and lease manager, not by the structs themselves.
package model

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Subnet is an administratively declared IPv4 network.
type Subnet struct {
	ID              uuid.UUID
	Name            string
	Description     string
	Network         net.IPNet
	StartIP         net.IP
	EndIP           net.IP
	Gateway         net.IP
	DNSServers      []net.IP
	DomainName      string
	LeaseDuration   time.Duration
	VLANID          *int
	IPv6Prefix      *net.IPNet
	HostnameTemplate string
	Enabled         bool
}

// ContainsIP reports whether ip falls within the subnet's allocation range
// (inclusive), independent of whether it is the network or broadcast address.
func (s Subnet) ContainsIP(ip net.IP) bool {
	ip4 := ip.To4()
	start := s.StartIP.To4()
	end := s.EndIP.To4()
	if ip4 == nil || start == nil || end == nil {
		return false
	}
	return ipLessEq(start, ip4) && ipLessEq(ip4, end)
}

// NetworkAddr returns the network address of the subnet (e.g. 192.168.1.0).
func (s Subnet) NetworkAddr() net.IP {
	return s.Network.IP.Mask(s.Network.Mask)
}

// BroadcastAddr returns the broadcast address of the subnet.
func (s Subnet) BroadcastAddr() net.IP {
	ip := s.Network.IP.To4()
	mask := s.Network.Mask
	bcast := make(net.IP, 4)
	for i := range bcast {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}

// TotalAddresses returns the count of addresses in [StartIP, EndIP].
func (s Subnet) TotalAddresses() uint32 {
	return ipToUint32(s.EndIP) - ipToUint32(s.StartIP) + 1
}

func ipLessEq(a, b net.IP) bool {
	return ipToUint32(a) <= ipToUint32(b)
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

// Uint32ToIP is the inverse of ipToUint32, exported for use by the allocator.
func Uint32ToIP(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// IPToUint32 exposes the big-endian IPv4-as-uint32 conversion to other
// packages (allocator scan, reverse-zone naming).
func IPToUint32(ip net.IP) uint32 {
	return ipToUint32(ip)
}

// Reservation is a static MAC -> IP binding, pre-empting pool allocation.
type Reservation struct {
	ID          uuid.UUID
	SubnetID    uuid.UUID
	MAC         MAC
	IP          net.IP
	Hostname    string
	Description string
}

// LeaseState is the server-side view of a client binding's lifecycle.
type LeaseState string

const (
	LeaseActive   LeaseState = "active"
	LeaseReleased LeaseState = "released"
	LeaseExpired  LeaseState = "expired"
	LeaseDeclined LeaseState = "declined"
)

// Lease is a dynamic MAC <-> IP binding.
type Lease struct {
	ID               uuid.UUID
	SubnetID         uuid.UUID
	MAC              MAC
	IP               net.IP
	Hostname         string
	LeaseStart       time.Time
	LeaseEnd         time.Time
	State            LeaseState
	ClientIdentifier string
	VendorClass      string
	UserClass        string
}

// IsActiveAt reports whether the lease is usable (active and unexpired) at
// the given instant, regardless of whether State has been flipped to
// Expired yet -- spec: "lease whose lease_end < now is treated as not-in-use
// ... even if state has not yet been flipped".
func (l Lease) IsActiveAt(now time.Time) bool {
	return l.State == LeaseActive && l.LeaseEnd.After(now)
}

// DNSZone holds SOA fields for an authoritative zone FlowDNS mutates.
type DNSZone struct {
	ID              uuid.UUID
	Name            string
	SerialNumber    uint32
	RefreshInterval int32
	RetryInterval   int32
	ExpireInterval  int32
	MinimumTTL      int32
	PrimaryNS       string
	AdminEmail      string
}

// DNSRecordType enumerates the record kinds FlowDNS's dynamic updater uses.
type DNSRecordType string

const (
	RecordA     DNSRecordType = "A"
	RecordAAAA  DNSRecordType = "AAAA"
	RecordPTR   DNSRecordType = "PTR"
)

// DNSRecord is a single resource record within a zone.
type DNSRecord struct {
	ID        uuid.UUID
	ZoneID    uuid.UUID
	Name      string
	Type      DNSRecordType
	Value     string
	TTL       uint32
	Priority  *int
	Weight    *int
	Port      *int
	IsDynamic bool
}

// PrefixState is the lifecycle state of a delegated IPv6 prefix.
type PrefixState string

const (
	PrefixAvailable PrefixState = "available"
	PrefixDelegated PrefixState = "delegated"
	PrefixReserved  PrefixState = "reserved"
	PrefixExpired   PrefixState = "expired"
)

// DelegatedPrefix is an IA_PD binding, keyed by (ClientDUID, IAID).
type DelegatedPrefix struct {
	ID                uuid.UUID
	ClientDUID        []byte
	IAID              uint32
	Prefix            net.IP
	PrefixLength       int
	PreferredLifetime time.Duration
	ValidLifetime     time.Duration
	LeaseStart        time.Time
	LeaseEnd          time.Time
	State             PrefixState
}
