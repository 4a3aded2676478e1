package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/clock"
	"github.com/flowdns/flowdns/internal/config"
	"github.com/flowdns/flowdns/internal/dhcp4"
	"github.com/flowdns/flowdns/internal/dhcp6"
	"github.com/flowdns/flowdns/internal/dnsupdate"
	"github.com/flowdns/flowdns/internal/lease"
	"github.com/flowdns/flowdns/internal/logger"
	"github.com/flowdns/flowdns/internal/metrics"
	"github.com/flowdns/flowdns/internal/model"
	"github.com/flowdns/flowdns/internal/store"
	"github.com/flowdns/flowdns/internal/store/sqlitestore"
)

var appLog = logger.GetLogger("flowdnsd")

// poolResources is the per-subnet allocator state built once per Load: the
// IPv4 address allocators handed to the dhcp4 server, and the IPv6/PD pools
// handed to the dhcp6 server at construction -- unlike subnetIndex these
// aren't swapped on reload, since dhcp6.Server's own allocator maps aren't
// swappable (see DESIGN.md's reload section).
type poolResources struct {
	v6Pools      map[uuid.UUID]allocator.V6Pool
	addrAllocs4  map[uuid.UUID]*allocator.AddressAllocator
	pdAllocators map[uuid.UUID]*allocator.PDAllocator
}

// buildPoolResources persists every configured subnet and zone to st (the
// store is the system of record the allocators and dnsupdate consult) and
// constructs the per-subnet allocator set.
func buildPoolResources(ctx context.Context, st store.Store, cfg *config.Config) (*poolResources, error) {
	res := &poolResources{
		v6Pools:      make(map[uuid.UUID]allocator.V6Pool),
		addrAllocs4:  make(map[uuid.UUID]*allocator.AddressAllocator),
		pdAllocators: make(map[uuid.UUID]*allocator.PDAllocator),
	}

	for _, sc := range cfg.Subnets {
		sn := sc.Subnet
		if err := st.UpsertSubnet(ctx, sn); err != nil {
			return nil, fmt.Errorf("flowdnsd: persist subnet %q: %w", sn.Name, err)
		}

		res.addrAllocs4[sn.ID] = &allocator.AddressAllocator{Store: st, Clock: clock.Real{}}

		if sc.V6Pool != nil {
			res.v6Pools[sn.ID] = *sc.V6Pool
		}
		if sc.PDPool != nil {
			pd, err := allocator.NewPDAllocator(*sc.PDPool)
			if err != nil {
				return nil, fmt.Errorf("flowdnsd: delegation pool for %q: %w", sn.Name, err)
			}
			existing, err := st.PoolDelegations(ctx, sc.PDPool.Prefix, sc.PDPool.PrefixLength)
			if err != nil {
				return nil, fmt.Errorf("flowdnsd: load existing delegations for %q: %w", sn.Name, err)
			}
			if err := pd.Sync(existing); err != nil {
				return nil, fmt.Errorf("flowdnsd: sync delegation pool for %q: %w", sn.Name, err)
			}
			res.pdAllocators[sn.ID] = pd
		}
	}

	for _, z := range cfg.Zones {
		if err := st.UpsertZone(ctx, z); err != nil {
			return nil, fmt.Errorf("flowdnsd: persist zone %q: %w", z.Name, err)
		}
	}
	return res, nil
}

func subnetList(cfg *config.Config) []model.Subnet {
	out := make([]model.Subnet, 0, len(cfg.Subnets))
	for _, sc := range cfg.Subnets {
		out = append(out, sc.Subnet)
	}
	return out
}

// fanOutEvents forwards every value read from in to each of outs, closing
// every out once in closes or ctx is cancelled. internal/dnsupdate.Updater
// and internal/metrics.Subscriber each need their own receive end of
// lease.Manager's single Events channel.
func fanOutEvents(ctx context.Context, in <-chan lease.Event, outs ...chan lease.Event) {
	defer func() {
		for _, o := range outs {
			close(o)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			for _, o := range outs {
				select {
				case o <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// run wires every component from cfg and serves until ctx is cancelled. It
// returns the first error from any component, after every goroutine has
// had a chance to unwind (errgroup.Group semantics).
func run(ctx context.Context, cfg *config.Config) error {
	st, err := sqlitestore.Open(cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("flowdnsd: open store: %w", err)
	}

	res, err := buildPoolResources(ctx, st, cfg)
	if err != nil {
		return err
	}

	subnets := subnetList(cfg)
	dhcp4Subnets := dhcp4.NewSubnetSet(subnets)
	dhcp6Subnets := dhcp6.NewSubnetSet(subnets)

	idx := &subnetIndexRef{}
	idx.Swap(newSubnetIndex(subnets))

	mtx := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := mtx.Register(reg); err != nil {
		return fmt.Errorf("flowdnsd: register metrics: %w", err)
	}
	mtx.ActiveSubnets.Set(float64(len(subnets)))

	leaseMgr := lease.NewManager(st, clock.Real{}, lease.DefaultShards, 64)
	leaseMgr.DomainLookup = idx.Domain

	updater := dnsupdate.NewUpdater(st, 0, idx.Network, idx.Domain)
	updater.OnSyncResult = mtx.ObserveDNSSync
	updater.OnZoneBump = mtx.ObserveZoneBump

	dnsEvents := make(chan lease.Event, 64)
	metricsEvents := make(chan lease.Event, 64)
	go fanOutEvents(ctx, leaseMgr.Events, dnsEvents, metricsEvents)

	sub := metrics.NewSubscriber(mtx)

	serverDUID, err := dhcp6.NewServerDUID(clock.Real{}.Now())
	if err != nil {
		return fmt.Errorf("flowdnsd: build server DUID: %w", err)
	}

	srv4 := dhcp4.NewServer(cfg.DHCP4Listen, dhcp4Subnets, leaseMgr, res.addrAllocs4, cfg.ServerID)
	srv4.OnNAK = mtx.ObserveNAK
	srv4.OnPoolExhausted = func(subnet model.Subnet) { mtx.ObservePoolExhausted(subnet.Name) }

	srv6 := dhcp6.NewServer(cfg.DHCP6Listen, dhcp6Subnets, st, clock.Real{}, &allocator.AddressAllocatorV6{Store: st, Clock: clock.Real{}}, res.v6Pools, res.pdAllocators, serverDUID, cfg.DHCP6LeaseTime)
	srv6.OnDelegationIssued = mtx.ObserveDelegationIssued

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsListen,
		Handler: newMetricsMux(reg),
	}

	if err := updater.SyncActiveLeases(ctx); err != nil {
		appLog.WithError(err).Warn("flowdnsd: initial DNS sync failed")
	}

	if path := cfg.ConfigFile(); path != "" {
		err := config.Watch(ctx, path, func(reloaded *config.Config) {
			newSubnets := subnetList(reloaded)
			dhcp4Subnets.Swap(newSubnets)
			dhcp6Subnets.Swap(newSubnets)
			idx.Swap(newSubnetIndex(newSubnets))
			mtx.ActiveSubnets.Set(float64(len(newSubnets)))
			appLog.Info("flowdnsd: subnet map reloaded")
		})
		if err != nil {
			return fmt.Errorf("flowdnsd: watch config: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv4.ListenAndServe(gctx) })
	g.Go(func() error { return srv6.ListenAndServe(gctx) })
	g.Go(func() error { return leaseMgr.RunExpirationLoop(gctx, cfg.ExpirationInterval) })
	g.Go(func() error {
		updater.Run(gctx, dnsEvents)
		return nil
	})
	g.Go(func() error {
		sub.Run(gctx, metricsEvents)
		return nil
	})
	g.Go(func() error {
		appLog.WithField("addr", cfg.MetricsListen).Info("metrics listening")
		err := metricsSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return metricsSrv.Close()
	})

	return g.Wait()
}

func newMetricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
