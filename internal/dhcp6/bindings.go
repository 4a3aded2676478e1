package dhcp6

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store"
)

// offerIANA runs AddressAllocatorV6's decision procedure for a SOLICIT
// without persisting anything -- the v6 mirror of lease.Manager.Discover.
func offerIANA(ctx context.Context, alloc *allocator.AddressAllocatorV6, pool allocator.V6Pool, duid []byte, hint net.IP) (allocator.Result, error) {
	return alloc.Allocate(ctx, pool, duid, hint)
}

// commitIANA runs the allocate-or-renew-and-persist procedure for
// REQUEST/RENEW/REBIND, the v6 mirror of lease.Manager.Request: it NAKs
// (ack=false) unless the allocator can satisfy the client's requested
// address exactly.
func commitIANA(ctx context.Context, st store.Store, alloc *allocator.AddressAllocatorV6, pool allocator.V6Pool, duid []byte, requestedIP net.IP, now time.Time, leaseDuration time.Duration) (*model.Lease, bool, error) {
	res, err := alloc.Allocate(ctx, pool, duid, requestedIP)
	if err != nil {
		return nil, false, fmt.Errorf("dhcp6: allocate: %w", err)
	}
	if res.Outcome == allocator.Exhausted || (requestedIP != nil && !res.IP.Equal(requestedIP)) {
		return nil, false, nil
	}

	mac := allocator.DUIDToMAC(duid)
	if res.Outcome == allocator.Renew {
		existing, err := st.FindActiveLeaseByMAC(ctx, mac, now)
		if err != nil {
			return nil, false, fmt.Errorf("dhcp6: find active lease: %w", err)
		}
		if existing == nil {
			return nil, false, nil
		}
		newEnd := now.Add(leaseDuration)
		if err := st.ExtendLease(ctx, existing.ID, newEnd); err != nil {
			return nil, false, fmt.Errorf("dhcp6: extend lease: %w", err)
		}
		existing.LeaseEnd = newEnd
		return existing, true, nil
	}

	l := model.Lease{
		ID:         uuid.New(),
		SubnetID:   pool.SubnetID,
		MAC:        mac,
		IP:         res.IP,
		LeaseStart: now,
		LeaseEnd:   now.Add(leaseDuration),
		State:      model.LeaseActive,
	}
	stored, err := st.UpsertLease(ctx, l)
	if err != nil {
		return nil, false, fmt.Errorf("dhcp6: upsert lease: %w", err)
	}
	return stored, true, nil
}

// releaseIANA transitions the (mac, ip) binding derived from duid to released.
func releaseIANA(ctx context.Context, st store.Store, duid []byte, ip net.IP) (bool, error) {
	mac := allocator.DUIDToMAC(duid)
	return st.ReleaseLease(ctx, mac, ip)
}
