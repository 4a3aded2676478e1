// Package allocator implements the address- and prefix-allocation
// algorithms: a stateless IPv4 allocator over a Subnet+Store, a small
// IPv6 address pool allocator for stateful IA_NA bindings, and a
// bitmap-backed IPv6 prefix-delegation allocator.
package allocator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/flowdns/flowdns/internal/clock"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store"
)

// DefaultDeclineCooldown is how long a DHCPDECLINEd address is excluded
// from allocation.
const DefaultDeclineCooldown = 5 * time.Minute

// Outcome classifies the result of an allocation attempt.
type Outcome int

const (
	Reserved Outcome = iota
	Renew
	Hinted
	FirstFree
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case Renew:
		return "renew"
	case Hinted:
		return "hinted"
	case FirstFree:
		return "first-free"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is the outcome of an allocation attempt plus the address chosen,
// if any (nil when Outcome is Exhausted).
type Result struct {
	Outcome Outcome
	IP      net.IP
}

// AddressAllocator implements IPv4 address allocation (spec §4.3):
// reservation first, then renewal of an existing lease, then an honored
// client hint, then a deterministic ascending first-free scan, each
// checked against Store. It is stateless -- all concurrency guarantees
// come from the caller serializing per subnet/MAC (internal/lease).
type AddressAllocator struct {
	Store           store.Store
	Clock           clock.Clock
	DeclineCooldown time.Duration
}

func (a *AddressAllocator) cooldown() time.Duration {
	if a.DeclineCooldown <= 0 {
		return DefaultDeclineCooldown
	}
	return a.DeclineCooldown
}

func (a *AddressAllocator) now() time.Time {
	if a.Clock == nil {
		return time.Now().UTC()
	}
	return a.Clock.Now()
}

// Allocate runs the five-outcome decision procedure for subnet and mac,
// honoring hint (may be nil) only as a third-priority candidate.
func (a *AddressAllocator) Allocate(ctx context.Context, subnet model.Subnet, mac model.MAC, hint net.IP) (Result, error) {
	now := a.now()

	if res, err := a.Store.FindReservation(ctx, subnet.ID, mac); err != nil {
		return Result{}, fmt.Errorf("allocator: find reservation: %w", err)
	} else if res != nil {
		return Result{Outcome: Reserved, IP: res.IP}, nil
	}

	if lease, err := a.Store.FindActiveLeaseByMAC(ctx, mac, now); err != nil {
		return Result{}, fmt.Errorf("allocator: find active lease: %w", err)
	} else if lease != nil && lease.SubnetID == subnet.ID {
		return Result{Outcome: Renew, IP: lease.IP}, nil
	}

	if hint != nil {
		ok, err := a.candidateFree(ctx, subnet, hint, now)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{Outcome: Hinted, IP: hint}, nil
		}
	}

	start := model.IPToUint32(subnet.StartIP)
	end := model.IPToUint32(subnet.EndIP)
	for v := start; v <= end; v++ {
		ip := model.Uint32ToIP(v)
		ok, err := a.candidateFree(ctx, subnet, ip, now)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{Outcome: FirstFree, IP: ip}, nil
		}
		if v == end {
			break // avoid wraparound if end == ^uint32(0)
		}
	}
	return Result{Outcome: Exhausted}, nil
}

// candidateFree reports whether ip is eligible for assignment: inside the
// subnet's allocation range, not the network or broadcast address, not
// reserved for a different MAC, not already in use, and not within its
// post-decline cooldown.
func (a *AddressAllocator) candidateFree(ctx context.Context, subnet model.Subnet, ip net.IP, now time.Time) (bool, error) {
	if !subnet.ContainsIP(ip) {
		return false, nil
	}
	if ip.Equal(subnet.NetworkAddr()) || ip.Equal(subnet.BroadcastAddr()) {
		return false, nil
	}
	if res, err := a.Store.FindReservationByIP(ctx, subnet.ID, ip); err != nil {
		return false, fmt.Errorf("allocator: find reservation by ip: %w", err)
	} else if res != nil {
		return false, nil
	}
	if inUse, err := a.Store.IsIPInUse(ctx, subnet.ID, ip, now); err != nil {
		return false, fmt.Errorf("allocator: is ip in use: %w", err)
	} else if inUse {
		return false, nil
	}
	if declined, err := a.Store.IsDeclined(ctx, subnet.ID, ip, now, a.cooldown()); err != nil {
		return false, fmt.Errorf("allocator: is declined: %w", err)
	} else if declined {
		return false, nil
	}
	return true, nil
}
