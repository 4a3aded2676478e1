// Package store defines the persistence contract for subnets,
// reservations, leases, DNS zones/records and delegated prefixes. The
// contract is deliberately narrow -- schema and engine are an
// implementation detail of a concrete Store, not part of this interface.
package store

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/flowdns/flowdns/internal/model"
)

// Store is implemented by any backing engine capable of holding FlowDNS's
// persisted entities. All methods must be safe for concurrent use; callers
// additionally serialize per-MAC and per-(subnet,IP) operations through
// internal/lease's keyed mutex table, but a Store must never corrupt its
// own state even if called without that external serialization.
type Store interface {
	// UpsertSubnet creates or replaces the subnet record identified by s.ID.
	UpsertSubnet(ctx context.Context, s model.Subnet) error
	// LoadSubnets returns every enabled subnet.
	LoadSubnets(ctx context.Context) ([]model.Subnet, error)

	// UpsertReservation creates or replaces the reservation identified by r.ID.
	UpsertReservation(ctx context.Context, r model.Reservation) error
	// FindReservation returns the reservation for (subnetID, mac), or nil.
	FindReservation(ctx context.Context, subnetID uuid.UUID, mac model.MAC) (*model.Reservation, error)
	// FindReservationByIP returns the reservation for (subnetID, ip), or nil.
	FindReservationByIP(ctx context.Context, subnetID uuid.UUID, ip net.IP) (*model.Reservation, error)

	// FindActiveLeaseByMAC returns the unique active, unexpired lease for mac, or nil.
	FindActiveLeaseByMAC(ctx context.Context, mac model.MAC, now time.Time) (*model.Lease, error)
	// IsIPInUse reports whether ip is held by an active unexpired lease or a
	// reservation within subnetID.
	IsIPInUse(ctx context.Context, subnetID uuid.UUID, ip net.IP, now time.Time) (bool, error)
	// IsDeclined reports whether ip is within its post-DHCPDECLINE cooldown window.
	IsDeclined(ctx context.Context, subnetID uuid.UUID, ip net.IP, now time.Time, cooldown time.Duration) (bool, error)

	// UpsertLease replaces any existing active lease for mac and returns the
	// canonical stored record.
	UpsertLease(ctx context.Context, l model.Lease) (*model.Lease, error)
	// ExtendLease updates lease_end only, leaving lease_start/ip/mac intact.
	ExtendLease(ctx context.Context, leaseID uuid.UUID, newEnd time.Time) error
	// ReleaseLease transitions active->released for the matching (mac, ip)
	// lease and reports whether a row was modified.
	ReleaseLease(ctx context.Context, mac model.MAC, ip net.IP) (bool, error)
	// ExpireDueLeases transitions active->expired for every lease whose
	// lease_end < now and returns the count transitioned.
	ExpireDueLeases(ctx context.Context, now time.Time) (int, error)
	// DeclineLease transitions active->declined for (mac, ip) and opens a
	// cooldown window starting at now.
	DeclineLease(ctx context.Context, mac model.MAC, ip net.IP, now time.Time) error
	// ActiveLeases returns every lease currently in the active state, for
	// startup DNS synchronization.
	ActiveLeases(ctx context.Context) ([]model.Lease, error)

	// UpsertZone creates or replaces the zone identified by z.ID.
	UpsertZone(ctx context.Context, z model.DNSZone) error
	// FindZone returns the zone with the given name, or nil.
	FindZone(ctx context.Context, name string) (*model.DNSZone, error)
	// BumpZoneSerial atomically increments and returns the zone's serial number.
	BumpZoneSerial(ctx context.Context, zoneID uuid.UUID) (uint32, error)
	// UpsertDynamicRecord replaces the (zone,name,type) record iff the
	// existing row (if any) has is_dynamic=true; a static row is left
	// untouched and ok is reported false.
	UpsertDynamicRecord(ctx context.Context, zoneID uuid.UUID, name string, rtype model.DNSRecordType, value string, ttl uint32) (ok bool, err error)
	// RemoveDynamicRecord deletes the (zone,name,type) record iff is_dynamic=true.
	RemoveDynamicRecord(ctx context.Context, zoneID uuid.UUID, name string, rtype model.DNSRecordType) (ok bool, err error)

	// FindDelegatedPrefix returns the prefix delegation keyed by (duid, iaid), or nil.
	FindDelegatedPrefix(ctx context.Context, duid []byte, iaid uint32) (*model.DelegatedPrefix, error)
	// UpsertDelegatedPrefix creates or replaces the delegation identified by (p.ClientDUID, p.IAID).
	UpsertDelegatedPrefix(ctx context.Context, p model.DelegatedPrefix) error
	// ReleaseDelegatedPrefix transitions delegated->available.
	ReleaseDelegatedPrefix(ctx context.Context, duid []byte, iaid uint32) error
	// ExpireDuePrefixes transitions delegated->expired where lease_end < now.
	ExpireDuePrefixes(ctx context.Context, now time.Time) (int, error)
	// ReclaimExpiredPrefixes transitions expired->available once grace has
	// elapsed since lease_end.
	ReclaimExpiredPrefixes(ctx context.Context, now time.Time, grace time.Duration) (int, error)
	// PoolDelegations returns every delegation whose prefix falls within the
	// given pool, used by the allocator's next-free-index scan.
	PoolDelegations(ctx context.Context, poolPrefix net.IP, poolLen int) ([]model.DelegatedPrefix, error)

	Close() error
}
