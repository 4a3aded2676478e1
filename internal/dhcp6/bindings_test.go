package dhcp6

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/clock"
	"github.com/flowdns/flowdns/internal/store/sqlitestore"
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	st, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testDUID() []byte {
	return []byte{0x00, 0x03, 0x00, 0x01, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}
}

func TestCommitIANAFreshAllocation(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	pool := allocator.V6Pool{SubnetID: subnetID, StartIP: net.ParseIP("2001:db8::100"), EndIP: net.ParseIP("2001:db8::110")}
	alloc := &allocator.AddressAllocatorV6{Store: st, Clock: clock.Real{}}

	requested := net.ParseIP("2001:db8::100")
	l, ack, err := commitIANA(context.Background(), st, alloc, pool, testDUID(), requested, time.Now().UTC(), time.Hour)
	require.NoError(t, err)
	require.True(t, ack)
	assert.True(t, l.IP.Equal(requested))
}

func TestCommitIANARenewalIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	pool := allocator.V6Pool{SubnetID: subnetID, StartIP: net.ParseIP("2001:db8::100"), EndIP: net.ParseIP("2001:db8::110")}
	alloc := &allocator.AddressAllocatorV6{Store: st, Clock: clock.Real{}}
	duid := testDUID()
	now := time.Now().UTC()

	first, ack, err := commitIANA(context.Background(), st, alloc, pool, duid, net.ParseIP("2001:db8::100"), now, time.Hour)
	require.NoError(t, err)
	require.True(t, ack)

	second, ack, err := commitIANA(context.Background(), st, alloc, pool, duid, net.ParseIP("2001:db8::100"), now.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	require.True(t, ack)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LeaseEnd.After(first.LeaseEnd))
}

func TestCommitIANANaksOnMismatchedRequest(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	pool := allocator.V6Pool{SubnetID: subnetID, StartIP: net.ParseIP("2001:db8::100"), EndIP: net.ParseIP("2001:db8::100")}
	alloc := &allocator.AddressAllocatorV6{Store: st, Clock: clock.Real{}}

	_, ack, err := commitIANA(context.Background(), st, alloc, pool, testDUID(), net.ParseIP("2001:db8::200"), time.Now().UTC(), time.Hour)
	require.NoError(t, err)
	assert.False(t, ack)
}

func TestReleaseIANAFreesTheAddress(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	pool := allocator.V6Pool{SubnetID: subnetID, StartIP: net.ParseIP("2001:db8::100"), EndIP: net.ParseIP("2001:db8::100")}
	alloc := &allocator.AddressAllocatorV6{Store: st, Clock: clock.Real{}}
	duid := testDUID()
	now := time.Now().UTC()

	l, ack, err := commitIANA(context.Background(), st, alloc, pool, duid, net.ParseIP("2001:db8::100"), now, time.Hour)
	require.NoError(t, err)
	require.True(t, ack)

	ok, err := releaseIANA(context.Background(), st, duid, l.IP)
	require.NoError(t, err)
	assert.True(t, ok)

	second, ack, err := commitIANA(context.Background(), st, alloc, pool, []byte{0xaa}, net.ParseIP("2001:db8::100"), now, time.Hour)
	require.NoError(t, err)
	require.True(t, ack)
	assert.True(t, second.IP.Equal(net.ParseIP("2001:db8::100")))
}
