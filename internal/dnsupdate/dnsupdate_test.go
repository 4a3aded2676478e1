package dnsupdate

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdns/flowdns/internal/lease"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store/sqlitestore"
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	st, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedZones(t *testing.T, st *sqlitestore.Store, forward, reverse string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	fwd := model.DNSZone{ID: uuid.New(), Name: forward, SerialNumber: 1}
	rev := model.DNSZone{ID: uuid.New(), Name: reverse, SerialNumber: 1}
	require.NoError(t, st.UpsertZone(context.Background(), fwd))
	require.NoError(t, st.UpsertZone(context.Background(), rev))
	return fwd.ID, rev.ID
}

func testLease(subnetID uuid.UUID, ip net.IP, hostname string) model.Lease {
	now := time.Now().UTC()
	return model.Lease{
		ID:         uuid.New(),
		SubnetID:   subnetID,
		MAC:        model.MAC{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e},
		IP:         ip,
		Hostname:   hostname,
		LeaseStart: now,
		LeaseEnd:   now.Add(time.Hour),
		State:      model.LeaseActive,
	}
}

// TestUpdaterCreatedBumpsBothSerialsOnce covers the "printer.lan" scenario
// (spec.md §8 scenario 6): a fresh lease install produces a dynamic A record
// and matching PTR, each zone's serial advancing by exactly one.
func TestUpdaterCreatedBumpsBothSerialsOnce(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	_, _ = seedZones(t, st, "lan", "10.168.192.in-addr.arpa.")

	u := NewUpdater(st, 0, nil, nil)
	l := testLease(subnetID, net.ParseIP("192.168.10.100"), "printer")

	ev := lease.Event{Type: lease.EventCreated, Lease: l, DomainName: "lan"}
	u.handle(context.Background(), ev)

	fwdZone, err := st.FindZone(context.Background(), "lan")
	require.NoError(t, err)
	require.NotNil(t, fwdZone)
	assert.Equal(t, uint32(2), fwdZone.SerialNumber)

	revZone, err := st.FindZone(context.Background(), "10.168.192.in-addr.arpa.")
	require.NoError(t, err)
	require.NotNil(t, revZone)
	assert.Equal(t, uint32(2), revZone.SerialNumber)
}

func TestUpdaterEmptyHostnameIsNoOp(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	fwdID, revID := seedZones(t, st, "lan", "10.168.192.in-addr.arpa.")

	u := NewUpdater(st, 0, nil, nil)
	l := testLease(subnetID, net.ParseIP("192.168.10.101"), "")
	u.handle(context.Background(), lease.Event{Type: lease.EventCreated, Lease: l, DomainName: "lan"})

	fwdZone, err := st.FindZone(context.Background(), "lan")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), fwdZone.SerialNumber)
	assert.Equal(t, fwdID, fwdZone.ID)

	revZone, err := st.FindZone(context.Background(), "10.168.192.in-addr.arpa.")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), revZone.SerialNumber)
	assert.Equal(t, revID, revZone.ID)
}

// staticRecordStore wraps a real Store but pretends one forward name/type
// pair is a pre-existing static record, mirroring what UpsertDynamicRecord
// reports when is_dynamic=0 (spec.md §4.6: the dynamic update loses).
type staticRecordStore struct {
	*sqlitestore.Store
	blockedName  string
	blockedRtype model.DNSRecordType
}

func (s *staticRecordStore) UpsertDynamicRecord(ctx context.Context, zoneID uuid.UUID, name string, rtype model.DNSRecordType, value string, ttl uint32) (bool, error) {
	if name == s.blockedName && rtype == s.blockedRtype {
		return false, nil
	}
	return s.Store.UpsertDynamicRecord(ctx, zoneID, name, rtype, value, ttl)
}

// TestUpdaterStaticRecordIsNotOverwritten covers the "dynamic update loses to
// a static record" rule (spec.md §4.6): a blocked forward record stays out
// of the dynamic path, but the PTR side and zone serial still proceed.
func TestUpdaterStaticRecordIsNotOverwritten(t *testing.T) {
	base := newTestStore(t)
	subnetID := uuid.New()
	seedZones(t, base, "lan", "10.168.192.in-addr.arpa.")
	st := &staticRecordStore{Store: base, blockedName: "printer.lan.", blockedRtype: model.RecordA}

	u := NewUpdater(st, 0, nil, nil)
	l := testLease(subnetID, net.ParseIP("192.168.10.100"), "printer")
	u.handle(context.Background(), lease.Event{Type: lease.EventCreated, Lease: l, DomainName: "lan"})

	fwdZone, err := base.FindZone(context.Background(), "lan")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), fwdZone.SerialNumber, "blocked forward record must not bump the forward zone serial")

	revZone, err := base.FindZone(context.Background(), "10.168.192.in-addr.arpa.")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), revZone.SerialNumber, "PTR side still updates independently")
}

func TestUpdaterReleaseRemovesRecordsAndBumpsSerials(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	seedZones(t, st, "lan", "10.168.192.in-addr.arpa.")

	u := NewUpdater(st, 0, nil, nil)
	l := testLease(subnetID, net.ParseIP("192.168.10.100"), "printer")

	u.handle(context.Background(), lease.Event{Type: lease.EventCreated, Lease: l, DomainName: "lan"})
	u.handle(context.Background(), lease.Event{Type: lease.EventReleased, Lease: l, DomainName: "lan"})

	fwdZone, err := st.FindZone(context.Background(), "lan")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), fwdZone.SerialNumber)

	revZone, err := st.FindZone(context.Background(), "10.168.192.in-addr.arpa.")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), revZone.SerialNumber)
}

func TestSyncActiveLeasesUpsertsEveryActiveLease(t *testing.T) {
	st := newTestStore(t)
	subnetID := uuid.New()
	seedZones(t, st, "lan", "10.168.192.in-addr.arpa.")

	l1 := testLease(subnetID, net.ParseIP("192.168.10.10"), "host-a")
	l2 := testLease(subnetID, net.ParseIP("192.168.10.11"), "host-b")
	_, err := st.UpsertLease(context.Background(), l1)
	require.NoError(t, err)
	_, err = st.UpsertLease(context.Background(), l2)
	require.NoError(t, err)

	u := NewUpdater(st, 0, nil, func(uuid.UUID) (string, bool) { return "lan", true })
	require.NoError(t, u.SyncActiveLeases(context.Background()))

	fwdZone, err := st.FindZone(context.Background(), "lan")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), fwdZone.SerialNumber)
}

func TestComputeFQDNUsesExistingDotAsAlreadyQualified(t *testing.T) {
	assert.Equal(t, "host.example.com.", ComputeFQDN("host.example.com", "lan"))
	assert.Equal(t, "host.lan.", ComputeFQDN("host", "lan"))
	assert.Equal(t, "", ComputeFQDN("", "lan"))
}

func TestPTRNameIPv4(t *testing.T) {
	assert.Equal(t, "100.10.168.192.in-addr.arpa.", PTRName(net.ParseIP("192.168.10.100")))
}

func TestReverseZoneNameIPv4DefaultsToSlash24(t *testing.T) {
	assert.Equal(t, "10.168.192.in-addr.arpa.", ReverseZoneName(net.ParseIP("192.168.10.0"), 24))
	assert.Equal(t, "168.192.in-addr.arpa.", ReverseZoneName(net.ParseIP("192.168.0.0"), 16))
}

func TestReverseZoneNameIPv6CutsOnNibbleBoundary(t *testing.T) {
	name := ReverseZoneName(net.ParseIP("2001:db8::"), 32)
	assert.Equal(t, "8.b.d.0.1.0.0.2.ip6.arpa.", name)
}
