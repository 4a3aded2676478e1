package allocator_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/model"
)

func newTestPDAllocator(t *testing.T) *allocator.PDAllocator {
	t.Helper()
	a, err := allocator.NewPDAllocator(allocator.PDPool{
		Prefix:           net.ParseIP("2001:db8::"),
		PrefixLength:     48,
		DelegationLength: 52, // 16 possible delegations
	})
	require.NoError(t, err)
	return a
}

func TestPDAllocatorFirstFreeAscending(t *testing.T) {
	a := newTestPDAllocator(t)

	first, err := a.Allocate(nil)
	require.NoError(t, err)
	assert.True(t, first.IP.Equal(net.ParseIP("2001:db8::")))

	second, err := a.Allocate(nil)
	require.NoError(t, err)
	assert.True(t, second.IP.Equal(net.ParseIP("2001:db8:0:1000::")))
}

func TestPDAllocatorHonorsFreeHint(t *testing.T) {
	a := newTestPDAllocator(t)

	hint := net.ParseIP("2001:db8:0:3000::")
	res, err := a.Allocate(hint)
	require.NoError(t, err)
	assert.True(t, res.IP.Equal(hint))
}

func TestPDAllocatorExhaustion(t *testing.T) {
	a, err := allocator.NewPDAllocator(allocator.PDPool{
		Prefix:           net.ParseIP("2001:db8::"),
		PrefixLength:     62,
		DelegationLength: 63, // only 2 delegations
	})
	require.NoError(t, err)

	_, err = a.Allocate(nil)
	require.NoError(t, err)
	_, err = a.Allocate(nil)
	require.NoError(t, err)
	_, err = a.Allocate(nil)
	assert.ErrorIs(t, err, allocator.ErrNoPrefixAvail)
}

func TestPDAllocatorFreeAndDoubleFree(t *testing.T) {
	a := newTestPDAllocator(t)

	res, err := a.Allocate(nil)
	require.NoError(t, err)

	require.NoError(t, a.Free(res))

	var dfe *allocator.ErrDoubleFree
	err = a.Free(res)
	require.ErrorAs(t, err, &dfe)
}

func TestPDAllocatorSyncMarksExistingDelegationsUsed(t *testing.T) {
	a := newTestPDAllocator(t)
	require.NoError(t, a.Sync([]model.DelegatedPrefix{
		{Prefix: net.ParseIP("2001:db8::"), State: model.PrefixDelegated},
	}))

	res, err := a.Allocate(nil)
	require.NoError(t, err)
	assert.True(t, res.IP.Equal(net.ParseIP("2001:db8:0:1000::")), "index 0 was already synced as taken")
}
