package allocator

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/flowdns/flowdns/internal/model"
)

// ErrNoPrefixAvail is returned when a PDAllocator's pool is exhausted.
var ErrNoPrefixAvail = errors.New("allocator: no delegated prefix available")

// ErrDoubleFree is returned by PDAllocator.Free when the given prefix was
// not currently allocated.
type ErrDoubleFree struct {
	Prefix net.IPNet
}

func (e *ErrDoubleFree) Error() string {
	return fmt.Sprintf("allocator: prefix %s was not allocated", e.Prefix.String())
}

// PDPool describes an IPv6 prefix-delegation pool: PrefixLength is the
// pool's own size (e.g. /48), DelegationLength is the fixed size handed
// out to each client (e.g. /56) -- PDAllocator only ever returns prefixes
// of this one size, the same simplifying choice documented in the
// bitmap allocator this is grounded on.
type PDPool struct {
	Prefix           net.IP
	PrefixLength     int
	DelegationLength int
}

// PDAllocator hands out fixed-size delegated prefixes from a PDPool using
// a bitmap keyed by index within the pool, exactly as
// plugins/allocators/bitmap does for in-memory allocation -- FlowDNS
// rebuilds the bitmap from durable state via Sync at startup/reload
// instead of treating the bitmap itself as the source of truth.
type PDAllocator struct {
	pool   PDPool
	bitmap *bitset.BitSet
	mu     sync.Mutex
}

// NewPDAllocator constructs an allocator for pool.
func NewPDAllocator(pool PDPool) (*PDAllocator, error) {
	order := pool.DelegationLength - pool.PrefixLength
	if order < 0 {
		return nil, errors.New("allocator: delegation length cannot be larger than the pool prefix")
	}
	if order >= strconv.IntSize {
		return nil, fmt.Errorf("allocator: a pool with more than 2^%d delegations is not representable", order)
	}
	size := uint(1) << uint(order)
	if size > bitset.Cap() {
		return nil, errors.New("allocator: pool too large for the bitmap allocator")
	}
	return &PDAllocator{
		pool:   pool,
		bitmap: bitset.New(size),
	}, nil
}

// Sync marks every non-available delegation in existing as taken, rebuilding
// in-memory allocation state from a durable source (internal/store) after
// a restart.
func (a *PDAllocator) Sync(existing []model.DelegatedPrefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range existing {
		if d.State == model.PrefixAvailable {
			continue
		}
		idx, err := a.indexOf(d.Prefix)
		if err != nil {
			return fmt.Errorf("allocator: sync delegated prefix %s: %w", d.Prefix, err)
		}
		a.bitmap.Set(idx)
	}
	return nil
}

// Allocate returns hint if it falls within the pool and is free; otherwise
// it returns the first free delegation-sized prefix, ascending by index.
func (a *PDAllocator) Allocate(hint net.IP) (net.IPNet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	poolNet := &net.IPNet{IP: a.pool.Prefix, Mask: net.CIDRMask(a.pool.PrefixLength, 128)}

	if hint != nil && poolNet.Contains(hint) {
		if idx, err := a.indexOf(hint); err == nil && !a.bitmap.Test(idx) {
			a.bitmap.Set(idx)
			return net.IPNet{IP: a.prefixAt(idx), Mask: net.CIDRMask(a.pool.DelegationLength, 128)}, nil
		}
	}

	idx, ok := a.bitmap.NextClear(0)
	if !ok {
		return net.IPNet{}, ErrNoPrefixAvail
	}
	a.bitmap.Set(idx)
	return net.IPNet{IP: a.prefixAt(idx), Mask: net.CIDRMask(a.pool.DelegationLength, 128)}, nil
}

// Free returns prefix to the pool.
func (a *PDAllocator) Free(prefix net.IPNet) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, err := a.indexOf(prefix.IP)
	if err != nil {
		return fmt.Errorf("allocator: free prefix %s: %w", prefix.String(), err)
	}
	if !a.bitmap.Test(idx) {
		return &ErrDoubleFree{Prefix: prefix}
	}
	a.bitmap.Clear(idx)
	return nil
}

// indexOf computes the delegation index of a prefix within the pool:
// (prefix - pool.base) >> (128 - delegationLength).
func (a *PDAllocator) indexOf(prefix net.IP) (uint, error) {
	base := ipToBigInt(a.pool.Prefix)
	target := ipToBigInt(prefix)
	diff := new(big.Int).Sub(target, base)
	if diff.Sign() < 0 {
		return 0, fmt.Errorf("prefix %s precedes pool base", prefix)
	}
	idx := new(big.Int).Rsh(diff, uint(128-a.pool.DelegationLength))
	if !idx.IsUint64() {
		return 0, fmt.Errorf("prefix %s index overflows uint", prefix)
	}
	return uint(idx.Uint64()), nil
}

// prefixAt computes pool.base | (idx << (128-delegationLength)).
func (a *PDAllocator) prefixAt(idx uint) net.IP {
	base := ipToBigInt(a.pool.Prefix)
	offset := new(big.Int).Lsh(big.NewInt(int64(idx)), uint(128-a.pool.DelegationLength))
	return bigIntToIP(new(big.Int).Add(base, offset))
}
