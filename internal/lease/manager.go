// Package lease owns the keyed-mutex table serializing per-client lease
// operations and implements the DHCPv4/DHCPv6 lease lifecycle on top of
// internal/allocator and internal/store: DISCOVER/REQUEST/RELEASE/DECLINE,
// lease expiration, and the LeaseEvent stream internal/dnsupdate consumes.
package lease

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/clock"
	"github.com/flowdns/flowdns/internal/flowerr"
	"github.com/flowdns/flowdns/internal/logger"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store"
)

// DefaultShards is the default size of the keyed-mutex table, generalizing
// plugins/range/plugin.go's single recMutex (spec §9: "shard the mutex
// table by hash(mac) mod N").
const DefaultShards = 64

// DefaultExpirationInterval matches the functional spec's fixed 300 second
// expiration sweep.
const DefaultExpirationInterval = 300 * time.Second

// Manager implements the DHCP lease state machine. One Manager is shared
// by every dhcp4/dhcp6 listener goroutine; all exported methods are safe
// for concurrent use.
type Manager struct {
	Store  store.Store
	Clock  clock.Clock
	Events chan Event
	mu     *shardedMutex
	subnet subnetLocks
	log    *logrus.Entry

	// DomainLookup resolves a subnet's domain name for leases the
	// expiration sweep finds, since sweepExpired only has a SubnetID to
	// work with. Nil is valid; EventExpired is then published with an
	// empty DomainName and internal/dnsupdate falls back to Hostname
	// alone when that happens.
	DomainLookup func(subnetID uuid.UUID) (domain string, ok bool)
}

// NewManager constructs a Manager. eventBuffer sizes the Events channel;
// 0 is a valid (unbuffered) size for tests that drain it inline.
func NewManager(st store.Store, clk clock.Clock, shards, eventBuffer int) *Manager {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &Manager{
		Store:  st,
		Clock:  clk,
		Events: make(chan Event, eventBuffer),
		mu:     newShardedMutex(shards),
		log:    logger.GetLogger("lease"),
	}
}

// lockSubnetAndMAC acquires the subnet lock and then the per-MAC shard, in
// that fixed order, and returns a function that releases both.
func (m *Manager) lockSubnetAndMAC(subnetID uuid.UUID, mac model.MAC) func() {
	unlockSubnet := m.subnet.lock(subnetID)
	unlockMAC := m.mu.lock(mac.Bytes())
	return func() {
		unlockMAC()
		unlockSubnet()
	}
}

func (m *Manager) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock.Now()
}

// emit publishes an event without blocking the caller indefinitely: if the
// subscriber isn't keeping up the event is dropped and logged, matching
// the ambient policy that background/best-effort paths log and continue
// rather than stall a packet handler.
func (m *Manager) emit(ev Event) {
	select {
	case m.Events <- ev:
	default:
		m.log.WithFields(logrus.Fields{
			"event": ev.Type,
			"mac":   ev.Lease.MAC.String(),
		}).Warn("lease event dropped, subscriber not keeping up")
	}
}

// Discover runs allocation for a DHCPDISCOVER without persisting anything:
// the offer is advisory only, matching spec's "offer state is not
// persisted" design note. hint is the client's requested IP (option 50),
// if any.
func (m *Manager) Discover(ctx context.Context, subnet model.Subnet, alloc *allocator.AddressAllocator, mac model.MAC, hint net.IP) (allocator.Result, error) {
	unlock := m.lockSubnetAndMAC(subnet.ID, mac)
	defer unlock()

	res, err := alloc.Allocate(ctx, subnet, mac, hint)
	if err != nil {
		return allocator.Result{}, fmt.Errorf("lease: discover: %w", err)
	}
	return res, nil
}

// Request runs the REQUEST/ACK-or-NAK procedure: re-run allocation against
// requestedIP as the hint. A Renew outcome extends the client's existing
// lease in place; any other non-exhausted outcome commits a new lease row
// only if the allocator's chosen address is exactly the one requested --
// anything else is a NAK (ack=false, err=nil).
//
// The subnet lock held for the whole call already serializes every Request
// against this subnet within the process, so the scan-then-commit race
// (two different MACs both finding the same free IP) can't happen here.
// The commit can still collide with another flowdnsd process pointed at
// the same store: UpsertLease surfaces that as flowerr.ErrConflict, and a
// bounded number of rescan-and-retry attempts absorbs it before giving up
// as Exhausted.
func (m *Manager) Request(ctx context.Context, subnet model.Subnet, alloc *allocator.AddressAllocator, mac model.MAC, requestedIP net.IP, clientHostname string) (lease *model.Lease, ack bool, err error) {
	unlock := m.lockSubnetAndMAC(subnet.ID, mac)
	defer unlock()

	for attempt := 0; ; attempt++ {
		res, err := alloc.Allocate(ctx, subnet, mac, requestedIP)
		if err != nil {
			return nil, false, fmt.Errorf("lease: request: %w", err)
		}
		if res.Outcome == allocator.Exhausted || res.IP == nil || !res.IP.Equal(requestedIP) {
			return nil, false, nil
		}

		now := m.now()
		newEnd := now.Add(subnet.LeaseDuration)

		if res.Outcome == allocator.Renew {
			existing, err := m.Store.FindActiveLeaseByMAC(ctx, mac, now)
			if err != nil {
				return nil, false, fmt.Errorf("lease: request: find active lease: %w", err)
			}
			if existing == nil {
				return nil, false, fmt.Errorf("lease: request: %w: allocator reported renew with no active lease", flowerr.ErrInvariant)
			}
			if err := m.Store.ExtendLease(ctx, existing.ID, newEnd); err != nil {
				return nil, false, fmt.Errorf("lease: request: extend: %w", err)
			}
			existing.LeaseEnd = newEnd
			m.emit(Event{Type: EventRenewed, Lease: *existing, DomainName: subnet.DomainName})
			return existing, true, nil
		}

		hostname := clientHostname
		if hostname == "" {
			hostname = synthesizeHostname(subnet.HostnameTemplate, res.IP)
		}
		l := model.Lease{
			SubnetID:   subnet.ID,
			MAC:        mac,
			IP:         res.IP,
			Hostname:   hostname,
			LeaseStart: now,
			LeaseEnd:   newEnd,
			State:      model.LeaseActive,
		}
		stored, err := m.Store.UpsertLease(ctx, l)
		if err != nil {
			if errors.Is(err, flowerr.ErrConflict) && attempt+1 < flowerr.MaxConflictRetries {
				m.log.WithFields(logrus.Fields{"subnet": subnet.ID, "ip": res.IP.String(), "attempt": attempt}).
					Debug("lease commit conflict, rescanning")
				continue
			}
			if errors.Is(err, flowerr.ErrConflict) {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("lease: request: upsert: %w", err)
		}
		m.emit(Event{Type: EventCreated, Lease: *stored, DomainName: subnet.DomainName})
		return stored, true, nil
	}
}

// Release transitions the lease matching (mac, ip) to released and emits
// EventReleased. It is a no-op (modified=false) if no active lease matches.
func (m *Manager) Release(ctx context.Context, subnet model.Subnet, mac model.MAC, ip net.IP) (modified bool, err error) {
	unlock := m.lockSubnetAndMAC(subnet.ID, mac)
	defer unlock()

	now := m.now()
	existing, err := m.Store.FindActiveLeaseByMAC(ctx, mac, now)
	if err != nil {
		return false, fmt.Errorf("lease: release: find active lease: %w", err)
	}
	if existing == nil || !existing.IP.Equal(ip) {
		return false, nil
	}

	modified, err = m.Store.ReleaseLease(ctx, mac, ip)
	if err != nil {
		return false, fmt.Errorf("lease: release: %w", err)
	}
	if modified {
		existing.State = model.LeaseReleased
		m.emit(Event{Type: EventReleased, Lease: *existing, DomainName: subnet.DomainName})
	}
	return modified, nil
}

// Decline transitions the lease matching (mac, ip) to declined and opens
// the decline cooldown window. No LeaseEvent is published: a decline only
// affects future allocation eligibility, not the DNS records a prior
// Created/Renewed event already installed.
func (m *Manager) Decline(ctx context.Context, subnet model.Subnet, mac model.MAC, ip net.IP) error {
	unlock := m.lockSubnetAndMAC(subnet.ID, mac)
	defer unlock()

	if err := m.Store.DeclineLease(ctx, mac, ip, m.now()); err != nil {
		return fmt.Errorf("lease: decline: %w", err)
	}
	return nil
}

// RunExpirationLoop sweeps for due leases every interval (0 selects
// DefaultExpirationInterval) until ctx is cancelled. For each lease that
// transitions active->expired it publishes EventExpired so DNS records
// can be retracted.
func (m *Manager) RunExpirationLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultExpirationInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.sweepExpired(ctx); err != nil {
				m.log.WithError(err).Error("lease expiration sweep failed")
			}
		}
	}
}

func (m *Manager) sweepExpired(ctx context.Context) error {
	now := m.now()

	active, err := m.Store.ActiveLeases(ctx)
	if err != nil {
		return fmt.Errorf("lease: sweep: active leases: %w", err)
	}
	var due []model.Lease
	for _, l := range active {
		if l.LeaseEnd.Before(now) {
			due = append(due, l)
		}
	}
	if len(due) == 0 {
		return nil
	}

	n, err := m.Store.ExpireDueLeases(ctx, now)
	if err != nil {
		return fmt.Errorf("lease: sweep: expire due leases: %w", err)
	}
	m.log.WithField("count", n).Debug("expired due leases")

	for _, l := range due {
		l.State = model.LeaseExpired
		var domain string
		if m.DomainLookup != nil {
			domain, _ = m.DomainLookup(l.SubnetID)
		}
		m.emit(Event{Type: EventExpired, Lease: l, DomainName: domain})
	}
	return nil
}
