package sqlitestore

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdns/flowdns/internal/flowerr"
	"github.com/flowdns/flowdns/internal/model"
)

func testSubnet(t *testing.T) model.Subnet {
	t.Helper()
	_, network, err := net.ParseCIDR("10.0.0.0/24")
	require.NoError(t, err)
	return model.Subnet{
		ID:            uuid.New(),
		Name:          "lab",
		Network:       *network,
		StartIP:       net.ParseIP("10.0.0.10"),
		EndIP:         net.ParseIP("10.0.0.200"),
		Gateway:       net.ParseIP("10.0.0.1"),
		DNSServers:    []net.IP{net.ParseIP("10.0.0.1")},
		LeaseDuration: time.Hour,
		Enabled:       true,
	}
}

func testMAC(t *testing.T, s string) model.MAC {
	t.Helper()
	mac, err := model.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func TestLoadSubnetsRoundTrip(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	require.NoError(t, st.UpsertSubnet(ctx, sn))

	loaded, err := st.LoadSubnets(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, sn.ID, loaded[0].ID)
	assert.Equal(t, sn.Name, loaded[0].Name)
	assert.True(t, sn.StartIP.Equal(loaded[0].StartIP))
	assert.True(t, sn.EndIP.Equal(loaded[0].EndIP))
	assert.Equal(t, sn.LeaseDuration, loaded[0].LeaseDuration)
}

func TestDisabledSubnetExcludedFromLoad(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	sn.Enabled = false
	require.NoError(t, st.UpsertSubnet(ctx, sn))

	loaded, err := st.LoadSubnets(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestUpsertLeaseReplacesPriorByMAC(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	require.NoError(t, st.UpsertSubnet(ctx, sn))
	mac := testMAC(t, "02:00:00:00:00:01")
	now := time.Now().UTC()

	first, err := st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: mac, IP: net.ParseIP("10.0.0.10"),
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.LeaseActive,
	})
	require.NoError(t, err)

	second, err := st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: mac, IP: net.ParseIP("10.0.0.11"),
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.LeaseActive,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := st.FindActiveLeaseByMAC(ctx, mac, now)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.IP.Equal(net.ParseIP("10.0.0.11")), "replaced lease should be the only active one for this MAC")

	inUse, err := st.IsIPInUse(ctx, sn.ID, net.ParseIP("10.0.0.10"), now)
	require.NoError(t, err)
	assert.False(t, inUse, "the superseded IP must no longer be considered in use")
}

func TestUpsertLeaseRejectsDuplicateActiveIP(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	require.NoError(t, st.UpsertSubnet(ctx, sn))
	now := time.Now().UTC()
	ip := net.ParseIP("10.0.0.50")

	_, err = st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: testMAC(t, "02:00:00:00:00:10"), IP: ip,
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.LeaseActive,
	})
	require.NoError(t, err)

	_, err = st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: testMAC(t, "02:00:00:00:00:11"), IP: ip,
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.LeaseActive,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, flowerr.ErrConflict), "a second active lease on the same (subnet, ip) must surface ErrConflict")
}

func TestExtendLeaseKeepsStartAndIP(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	require.NoError(t, st.UpsertSubnet(ctx, sn))
	mac := testMAC(t, "02:00:00:00:00:02")
	now := time.Now().UTC()

	l, err := st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: mac, IP: net.ParseIP("10.0.0.20"),
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.LeaseActive,
	})
	require.NoError(t, err)

	newEnd := now.Add(2 * time.Hour)
	require.NoError(t, st.ExtendLease(ctx, l.ID, newEnd))

	active, err := st.FindActiveLeaseByMAC(ctx, mac, now)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.IP.Equal(net.ParseIP("10.0.0.20")))
	assert.WithinDuration(t, newEnd, active.LeaseEnd, time.Second)
	assert.WithinDuration(t, l.LeaseStart, active.LeaseStart, time.Second)
}

func TestExpireDueLeases(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	require.NoError(t, st.UpsertSubnet(ctx, sn))
	mac := testMAC(t, "02:00:00:00:00:03")
	now := time.Now().UTC()

	_, err = st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: mac, IP: net.ParseIP("10.0.0.30"),
		LeaseStart: now.Add(-2 * time.Hour), LeaseEnd: now.Add(-time.Hour), State: model.LeaseActive,
	})
	require.NoError(t, err)

	n, err := st.ExpireDueLeases(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := st.FindActiveLeaseByMAC(ctx, mac, now)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDeclineLeaseOpensCooldown(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sn := testSubnet(t)
	require.NoError(t, st.UpsertSubnet(ctx, sn))
	mac := testMAC(t, "02:00:00:00:00:04")
	now := time.Now().UTC()
	ip := net.ParseIP("10.0.0.40")

	_, err = st.UpsertLease(ctx, model.Lease{
		SubnetID: sn.ID, MAC: mac, IP: ip,
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.LeaseActive,
	})
	require.NoError(t, err)

	require.NoError(t, st.DeclineLease(ctx, mac, ip, now))

	declined, err := st.IsDeclined(ctx, sn.ID, ip, now.Add(time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, declined)

	declined, err = st.IsDeclined(ctx, sn.ID, ip, now.Add(10*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, declined, "cooldown should have lapsed")
}

func TestDynamicRecordRefusesStaticOverwrite(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	zone := model.DNSZone{ID: uuid.New(), Name: "lab.example.", SerialNumber: 1}
	require.NoError(t, st.UpsertZone(ctx, zone))

	_, err = st.db.ExecContext(ctx, `insert into dns_records (id, zone_id, name, type, value, ttl, is_dynamic)
		values (?, ?, ?, ?, ?, ?, 0)`, uuid.New().String(), zone.ID.String(), "host.lab.example.", string(model.RecordA), "10.0.0.99", 300)
	require.NoError(t, err)

	ok, err := st.UpsertDynamicRecord(ctx, zone.ID, "host.lab.example.", model.RecordA, "10.0.0.5", 300)
	require.NoError(t, err)
	assert.False(t, ok, "a static record must not be replaced by a dynamic update")
}

func TestDynamicRecordUpsertAndRemove(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	zone := model.DNSZone{ID: uuid.New(), Name: "lab.example.", SerialNumber: 1}
	require.NoError(t, st.UpsertZone(ctx, zone))

	ok, err := st.UpsertDynamicRecord(ctx, zone.ID, "laptop.lab.example.", model.RecordA, "10.0.0.50", 300)
	require.NoError(t, err)
	assert.True(t, ok)

	serial, err := st.BumpZoneSerial(ctx, zone.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), serial)

	ok, err = st.RemoveDynamicRecord(ctx, zone.ID, "laptop.lab.example.", model.RecordA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDelegatedPrefixRoundTrip(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	duid := []byte{0x00, 0x01, 0x00, 0x01, 0xaa, 0xbb}
	now := time.Now().UTC()

	err = st.UpsertDelegatedPrefix(ctx, model.DelegatedPrefix{
		ClientDUID: duid, IAID: 1, Prefix: net.ParseIP("2001:db8:1::"), PrefixLength: 56,
		PreferredLifetime: 30 * time.Minute, ValidLifetime: time.Hour,
		LeaseStart: now, LeaseEnd: now.Add(time.Hour), State: model.PrefixDelegated,
	})
	require.NoError(t, err)

	found, err := st.FindDelegatedPrefix(ctx, duid, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 56, found.PrefixLength)
	assert.Equal(t, model.PrefixDelegated, found.State)

	require.NoError(t, st.ReleaseDelegatedPrefix(ctx, duid, 1))
	found, err = st.FindDelegatedPrefix(ctx, duid, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PrefixAvailable, found.State)
}
