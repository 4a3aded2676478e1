package dnsupdate

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/flowdns/flowdns/internal/lease"
	"github.com/flowdns/flowdns/internal/logger"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store"
)

// DefaultTTL is used for dynamic records when a subnet does not override it.
const DefaultTTL = 300

// Updater subscribes to a lease.Manager's Event channel and keeps the
// forward/reverse DNS zones in sync with the lease table (spec.md §4.6).
type Updater struct {
	Store store.Store
	TTL   uint32

	// SubnetLookup resolves the IPv4 network a subnet was configured
	// with, used to pick the reverse zone's octet cut (spec.md §4.7).
	// Nil defaults every lookup to the enclosing /24, spec.md's own
	// fallback for "any other prefix length".
	SubnetLookup func(subnetID uuid.UUID) (network net.IPNet, ok bool)

	// DomainLookup resolves a subnet's domain name for SyncActiveLeases,
	// which only has a model.Lease (bare SubnetID) per row, not the
	// lease.Event a running Manager would have attached DomainName to.
	DomainLookup func(subnetID uuid.UUID) (domain string, ok bool)

	// OnSyncResult, if set, is called once per lease transition with
	// whether every record touched by it was synchronized successfully.
	// internal/metrics wires this to its DNS sync counters.
	OnSyncResult func(success bool)
	// OnZoneBump, if set, is called once per successful zone serial
	// increment, naming the zone.
	OnZoneBump func(zoneName string)

	log *logrus.Entry
}

// NewUpdater constructs an Updater. ttl of 0 selects DefaultTTL. Either
// lookup may be nil; see the SubnetLookup/DomainLookup field docs for the
// fallback each uses.
func NewUpdater(st store.Store, ttl uint32, subnetLookup func(uuid.UUID) (net.IPNet, bool), domainLookup func(uuid.UUID) (string, bool)) *Updater {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Updater{
		Store:        st,
		TTL:          ttl,
		SubnetLookup: subnetLookup,
		DomainLookup: domainLookup,
		log:          logger.GetLogger("dnsupdate"),
	}
}

// Run drains events until the channel closes or ctx is cancelled.
func (u *Updater) Run(ctx context.Context, events <-chan lease.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			u.handle(ctx, ev)
		}
	}
}

func (u *Updater) handle(ctx context.Context, ev lease.Event) {
	var ok bool
	switch ev.Type {
	case lease.EventCreated, lease.EventRenewed:
		ok = u.upsert(ctx, ev.Lease, ev.DomainName)
	case lease.EventReleased, lease.EventExpired:
		ok = u.remove(ctx, ev.Lease, ev.DomainName)
	default:
		return
	}
	if u.OnSyncResult != nil {
		u.OnSyncResult(ok)
	}
}

func (u *Updater) bumpZone(ctx context.Context, zoneID uuid.UUID, zoneName string) error {
	if _, err := u.Store.BumpZoneSerial(ctx, zoneID); err != nil {
		return err
	}
	if u.OnZoneBump != nil {
		u.OnZoneBump(zoneName)
	}
	return nil
}

func (u *Updater) reverseZoneNetworkAndLen(subnetID uuid.UUID, ip net.IP) (net.IP, int) {
	if u.SubnetLookup != nil {
		if network, ok := u.SubnetLookup(subnetID); ok {
			_, bits := network.Mask.Size()
			if v4 := ip.To4(); v4 != nil && bits == 32 {
				ones, _ := network.Mask.Size()
				return network.IP, ones
			}
			if ip.To4() == nil && bits == 128 {
				ones, _ := network.Mask.Size()
				return network.IP, ones
			}
		}
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)), 24
	}
	return ip.Mask(net.CIDRMask(64, 128)), 64
}

func (u *Updater) recordType(ip net.IP) model.DNSRecordType {
	if ip.To4() != nil {
		return model.RecordA
	}
	return model.RecordAAAA
}

func (u *Updater) upsert(ctx context.Context, l model.Lease, domain string) bool {
	fqdn := ComputeFQDN(l.Hostname, domain)
	if fqdn == "" {
		return true
	}

	ok := true
	zone, err := u.Store.FindZone(ctx, domain)
	if err != nil {
		u.log.WithError(err).WithField("domain", domain).Warn("dnsupdate: forward zone lookup failed")
		ok = false
	} else if zone == nil {
		u.log.WithField("domain", domain).Warn("dnsupdate: no forward zone configured, skipping")
	} else {
		rtype := u.recordType(l.IP)
		value := forwardValue(fqdn, l.IP, u.TTL, rtype)
		updated, err := u.Store.UpsertDynamicRecord(ctx, zone.ID, fqdn, rtype, value, u.TTL)
		if err != nil {
			u.log.WithError(err).WithField("name", fqdn).Warn("dnsupdate: forward upsert failed")
			ok = false
		} else if !updated {
			u.log.WithField("name", fqdn).Info("dnsupdate: forward record is static, dynamic update skipped")
		} else if err := u.bumpZone(ctx, zone.ID, domain); err != nil {
			u.log.WithError(err).WithField("zone", domain).Warn("dnsupdate: bump forward zone serial failed")
			ok = false
		}
	}

	return u.upsertPTR(ctx, l, fqdn) && ok
}

func (u *Updater) upsertPTR(ctx context.Context, l model.Lease, fqdn string) bool {
	network, prefixLen := u.reverseZoneNetworkAndLen(l.SubnetID, l.IP)
	zoneName := ReverseZoneName(network, prefixLen)
	ptrName := PTRName(l.IP)

	zone, err := u.Store.FindZone(ctx, zoneName)
	if err != nil {
		u.log.WithError(err).WithField("zone", zoneName).Warn("dnsupdate: reverse zone lookup failed")
		return false
	}
	if zone == nil {
		u.log.WithField("zone", zoneName).Warn("dnsupdate: no reverse zone configured, skipping")
		return true
	}

	ptr := &dns.PTR{
		Hdr: dns.RR_Header{Name: ptrName, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: u.TTL},
		Ptr: dns.Fqdn(fqdn),
	}
	updated, err := u.Store.UpsertDynamicRecord(ctx, zone.ID, ptrName, model.RecordPTR, ptr.Ptr, u.TTL)
	if err != nil {
		u.log.WithError(err).WithField("name", ptrName).Warn("dnsupdate: PTR upsert failed")
		return false
	}
	if !updated {
		u.log.WithField("name", ptrName).Info("dnsupdate: PTR record is static, dynamic update skipped")
		return true
	}
	if err := u.bumpZone(ctx, zone.ID, zoneName); err != nil {
		u.log.WithError(err).WithField("zone", zoneName).Warn("dnsupdate: bump reverse zone serial failed")
		return false
	}
	return true
}

func (u *Updater) remove(ctx context.Context, l model.Lease, domain string) bool {
	fqdn := ComputeFQDN(l.Hostname, domain)
	if fqdn == "" {
		return true
	}

	ok := true
	if zone, err := u.Store.FindZone(ctx, domain); err != nil {
		u.log.WithError(err).WithField("domain", domain).Warn("dnsupdate: forward zone lookup failed")
		ok = false
	} else if zone != nil {
		rtype := u.recordType(l.IP)
		if removed, err := u.Store.RemoveDynamicRecord(ctx, zone.ID, fqdn, rtype); err != nil {
			u.log.WithError(err).WithField("name", fqdn).Warn("dnsupdate: forward removal failed")
			ok = false
		} else if removed {
			if err := u.bumpZone(ctx, zone.ID, domain); err != nil {
				u.log.WithError(err).WithField("zone", domain).Warn("dnsupdate: bump forward zone serial failed")
				ok = false
			}
		}
	}

	network, prefixLen := u.reverseZoneNetworkAndLen(l.SubnetID, l.IP)
	zoneName := ReverseZoneName(network, prefixLen)
	ptrName := PTRName(l.IP)
	zone, err := u.Store.FindZone(ctx, zoneName)
	if err != nil {
		u.log.WithError(err).WithField("zone", zoneName).Warn("dnsupdate: reverse zone lookup failed")
		return false
	}
	if zone == nil {
		return ok
	}
	if removed, err := u.Store.RemoveDynamicRecord(ctx, zone.ID, ptrName, model.RecordPTR); err != nil {
		u.log.WithError(err).WithField("name", ptrName).Warn("dnsupdate: PTR removal failed")
		ok = false
	} else if removed {
		if err := u.bumpZone(ctx, zone.ID, zoneName); err != nil {
			u.log.WithError(err).WithField("zone", zoneName).Warn("dnsupdate: bump reverse zone serial failed")
			ok = false
		}
	}
	return ok
}

// forwardValue renders the A/AAAA record's value field via miekg/dns's RR
// types so the stored string is exactly what the RR's own textual address
// representation would be, rather than a bespoke net.IP.String() call.
func forwardValue(fqdn string, ip net.IP, ttl uint32, rtype model.DNSRecordType) string {
	hdr := dns.RR_Header{Name: fqdn, Ttl: ttl, Class: dns.ClassINET}
	if rtype == model.RecordAAAA {
		hdr.Rrtype = dns.TypeAAAA
		rr := &dns.AAAA{Hdr: hdr, AAAA: ip.To16()}
		return rr.AAAA.String()
	}
	hdr.Rrtype = dns.TypeA
	rr := &dns.A{Hdr: hdr, A: ip.To4()}
	return rr.A.String()
}
