package metrics

import (
	"context"

	"github.com/flowdns/flowdns/internal/lease"
)

// Subscriber drains a lease.Manager's Event channel and folds each
// transition into the corresponding counters. It runs alongside
// internal/dnsupdate.Updater.Run on the same channel via a fan-out, or on
// its own channel if the caller prefers a dedicated one.
type Subscriber struct {
	Metrics *Metrics
}

// NewSubscriber constructs a Subscriber bound to m.
func NewSubscriber(m *Metrics) *Subscriber {
	return &Subscriber{Metrics: m}
}

// Run drains events until the channel closes or ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, events <-chan lease.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.observe(ev)
		}
	}
}

func (s *Subscriber) observe(ev lease.Event) {
	family := "v4"
	if ev.Lease.IP.To4() == nil {
		family = "v6"
	}
	switch ev.Type {
	case lease.EventCreated:
		s.Metrics.LeasesIssued.Inc()
	case lease.EventRenewed:
		s.Metrics.LeasesRenewed.Inc()
	case lease.EventReleased:
		s.Metrics.LeasesReleased.Inc()
	case lease.EventExpired:
		s.Metrics.LeasesExpired.WithLabelValues(family).Inc()
	}
}

// ObserveDNSSync records one lease-to-DNS synchronization outcome.
func (m *Metrics) ObserveDNSSync(success bool) {
	if success {
		m.DNSSyncSuccess.Inc()
		return
	}
	m.DNSSyncFailure.Inc()
}

// ObserveZoneBump records one serial increment for the named zone.
func (m *Metrics) ObserveZoneBump(zone string) {
	m.DNSZoneBumps.WithLabelValues(zone).Inc()
}

// ObserveNAK records a DHCPNAK/status-NoBinding response.
func (m *Metrics) ObserveNAK() {
	m.LeaseNAKs.Inc()
}

// ObservePoolExhausted records an allocation failure due to pool exhaustion.
func (m *Metrics) ObservePoolExhausted(subnet string) {
	m.PoolExhausted.WithLabelValues(subnet).Inc()
}

// ObserveDelegationIssued records one IA_PD prefix delegation.
func (m *Metrics) ObserveDelegationIssued() {
	m.DelegationsIssued.Inc()
}
