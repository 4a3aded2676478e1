package dhcp6

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/dhcp6wire"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store"
)

// PDLease is the fixed lifetime of every prefix delegation. Although PD
// pools are configured inside a subnet entry, the subnet's lease_duration
// is not applied to them.
const PDLease = time.Hour

// commitIAPD implements spec.md §4.5's prefix-delegation procedure for a
// single IA_PD: reuse the client's existing (duid, iaid) delegation if one
// exists, renewing its lease window; otherwise try the client's hint (the
// first heuristic plugins/prefix/plugin.go applies before falling back to
// a fresh allocation) and fall back to the allocator's own next-free
// choice.
func commitIAPD(ctx context.Context, st store.Store, alloc *allocator.PDAllocator, iapd dhcp6wire.IAPD, duid []byte, now time.Time) (*model.DelegatedPrefix, uint16) {
	existing, err := st.FindDelegatedPrefix(ctx, duid, iapd.IAID)
	if err != nil {
		return nil, dhcp6wire.StatusNoPrefixAvail
	}
	if existing != nil && existing.State == model.PrefixDelegated {
		existing.LeaseStart = now
		existing.LeaseEnd = now.Add(PDLease)
		if err := st.UpsertDelegatedPrefix(ctx, *existing); err != nil {
			return nil, dhcp6wire.StatusNoPrefixAvail
		}
		return existing, dhcp6wire.StatusSuccess
	}

	var hint net.IP
	for _, h := range iapd.Hints {
		if h.Prefix != nil && !h.Prefix.IsUnspecified() {
			hint = h.Prefix
			break
		}
	}

	prefix, err := alloc.Allocate(hint)
	if err != nil {
		return nil, dhcp6wire.StatusNoPrefixAvail
	}
	plen, _ := prefix.Mask.Size()
	d := model.DelegatedPrefix{
		ID:                uuid.New(),
		ClientDUID:        append([]byte(nil), duid...),
		IAID:              iapd.IAID,
		Prefix:            prefix.IP,
		PrefixLength:      plen,
		PreferredLifetime: PDLease,
		ValidLifetime:     PDLease,
		LeaseStart:        now,
		LeaseEnd:          now.Add(PDLease),
		State:             model.PrefixDelegated,
	}
	if err := st.UpsertDelegatedPrefix(ctx, d); err != nil {
		_ = alloc.Free(prefix)
		return nil, dhcp6wire.StatusNoPrefixAvail
	}
	return &d, dhcp6wire.StatusSuccess
}

func releaseIAPD(ctx context.Context, st store.Store, duid []byte, iaid uint32) error {
	if err := st.ReleaseDelegatedPrefix(ctx, duid, iaid); err != nil {
		return fmt.Errorf("dhcp6: release delegated prefix: %w", err)
	}
	return nil
}
