package dnsupdate

import "context"

// SyncActiveLeases upserts a DNS record for every currently active lease,
// for use at process start-up before the first lease.Event arrives. Mirrors
// the reference dynamic-update module's "sync all DHCP records into DNS at
// startup" pass: it counts successes and failures and logs a summary but
// never aborts start-up over a partial failure.
func (u *Updater) SyncActiveLeases(ctx context.Context) error {
	active, err := u.Store.ActiveLeases(ctx)
	if err != nil {
		return err
	}

	var success, failed int
	for _, l := range active {
		var domain string
		if u.DomainLookup != nil {
			domain, _ = u.DomainLookup(l.SubnetID)
		}
		ok := u.upsert(ctx, l, domain)
		if u.OnSyncResult != nil {
			u.OnSyncResult(ok)
		}
		if ok {
			success++
		} else {
			failed++
		}
	}

	u.log.WithField("success", success).WithField("failed", failed).Info("dnsupdate: startup sync complete")
	return nil
}
