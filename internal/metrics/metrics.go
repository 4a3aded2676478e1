// Package metrics exposes FlowDNS's Prometheus instrumentation: lease
// lifecycle counters, pool exhaustion/NAK counters, and DNS
// synchronization outcome counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector FlowDNS registers.
type Metrics struct {
	LeasesIssued    prometheus.Counter
	LeasesRenewed   prometheus.Counter
	LeasesReleased  prometheus.Counter
	LeasesExpired   *prometheus.CounterVec
	LeaseNAKs       prometheus.Counter
	PoolExhausted   *prometheus.CounterVec
	DelegationsIssued prometheus.Counter

	DNSSyncSuccess prometheus.Counter
	DNSSyncFailure prometheus.Counter
	DNSZoneBumps   *prometheus.CounterVec

	ActiveSubnets prometheus.Gauge
}

// NewMetrics constructs the FlowDNS collector set. Call Register to attach
// it to a prometheus.Registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		LeasesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_leases_issued_total",
			Help: "Total number of DHCP leases issued (ACK on a fresh allocation).",
		}),
		LeasesRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_leases_renewed_total",
			Help: "Total number of DHCP lease renewals.",
		}),
		LeasesReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_leases_released_total",
			Help: "Total number of DHCP leases released by clients.",
		}),
		LeasesExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowdns_leases_expired_total",
			Help: "Total number of leases reclaimed by the expiration sweep, by address family.",
		}, []string{"family"}),
		LeaseNAKs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_lease_naks_total",
			Help: "Total number of DHCPNAK/status-NoBinding responses sent.",
		}),
		PoolExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowdns_pool_exhausted_total",
			Help: "Total number of allocation attempts that failed because a pool had no free address.",
		}, []string{"subnet"}),
		DelegationsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_prefix_delegations_issued_total",
			Help: "Total number of IA_PD prefix delegations issued.",
		}),
		DNSSyncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_dns_sync_success_total",
			Help: "Total number of lease-to-DNS record synchronizations that succeeded.",
		}),
		DNSSyncFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowdns_dns_sync_failure_total",
			Help: "Total number of lease-to-DNS record synchronizations that failed.",
		}),
		DNSZoneBumps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowdns_dns_zone_serial_bumps_total",
			Help: "Total number of zone serial increments, by zone name.",
		}, []string{"zone"}),
		ActiveSubnets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowdns_active_subnets",
			Help: "Number of enabled subnets currently loaded.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.LeasesIssued.Describe(ch)
	m.LeasesRenewed.Describe(ch)
	m.LeasesReleased.Describe(ch)
	m.LeasesExpired.Describe(ch)
	m.LeaseNAKs.Describe(ch)
	m.PoolExhausted.Describe(ch)
	m.DelegationsIssued.Describe(ch)
	m.DNSSyncSuccess.Describe(ch)
	m.DNSSyncFailure.Describe(ch)
	m.DNSZoneBumps.Describe(ch)
	m.ActiveSubnets.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.LeasesIssued.Collect(ch)
	m.LeasesRenewed.Collect(ch)
	m.LeasesReleased.Collect(ch)
	m.LeasesExpired.Collect(ch)
	m.LeaseNAKs.Collect(ch)
	m.PoolExhausted.Collect(ch)
	m.DelegationsIssued.Collect(ch)
	m.DNSSyncSuccess.Collect(ch)
	m.DNSSyncFailure.Collect(ch)
	m.DNSZoneBumps.Collect(ch)
	m.ActiveSubnets.Collect(ch)
}

// Register attaches every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m)
}
