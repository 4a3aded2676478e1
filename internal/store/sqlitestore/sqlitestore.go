// Package sqlitestore is the sqlite-backed implementation of
// internal/store.Store, grounded on the lease-database pattern shared by
// the range plugin across the corpus (open a *sql.DB, create tables if
// missing, prepare-and-exec per call).
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/flowdns/flowdns/internal/flowerr"
	"github.com/flowdns/flowdns/internal/model"
)

// isUniqueConstraintErr reports whether err is sqlite rejecting an insert
// against idx_leases_active_ip, the (subnet_id, ip) where state='active'
// partial unique index backing the per-IP uniqueness invariant as a
// last-resort check below internal/lease's per-subnet mutex -- it only
// fires in practice if two flowdnsd processes share one store.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// Store is a sqlite-backed internal/store.Store.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to the sqlite database at dsn (use ":memory:"
// for an ephemeral store, as the corpus's own test fixtures do), enables
// WAL mode and a busy timeout so concurrent readers don't trip
// SQLITE_BUSY under the lease manager's per-MAC mutex contention, and
// ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("pragma journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable WAL: %w", err)
	}
	if _, err := db.Exec("pragma busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func ipListToCSV(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ",")
}

func csvToIPList(csv string) []net.IP {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	ips := make([]net.IP, 0, len(parts))
	for _, p := range parts {
		if ip := net.ParseIP(p); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

func nullableInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtrFromNullable(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// UpsertSubnet implements store.Store.
func (s *Store) UpsertSubnet(ctx context.Context, sn model.Subnet) error {
	var ipv6Prefix string
	if sn.IPv6Prefix != nil {
		ipv6Prefix = sn.IPv6Prefix.String()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into subnets (id, name, description, network, start_ip, end_ip, gateway, dns_servers,
			domain_name, lease_duration_seconds, vlan_id, ipv6_prefix, hostname_template, enabled)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			name=excluded.name, description=excluded.description, network=excluded.network,
			start_ip=excluded.start_ip, end_ip=excluded.end_ip, gateway=excluded.gateway,
			dns_servers=excluded.dns_servers, domain_name=excluded.domain_name,
			lease_duration_seconds=excluded.lease_duration_seconds, vlan_id=excluded.vlan_id,
			ipv6_prefix=excluded.ipv6_prefix, hostname_template=excluded.hostname_template,
			enabled=excluded.enabled`,
		sn.ID.String(), sn.Name, sn.Description, sn.Network.String(), sn.StartIP.String(), sn.EndIP.String(),
		sn.Gateway.String(), ipListToCSV(sn.DNSServers), sn.DomainName, int64(sn.LeaseDuration/time.Second),
		nullableInt(sn.VLANID), ipv6Prefix, sn.HostnameTemplate, boolToInt(sn.Enabled))
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert subnet %s: %w", sn.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSubnet(row interface {
	Scan(dest ...any) error
}) (model.Subnet, error) {
	var (
		sn                                                    model.Subnet
		id                                                     string
		network, startIP, endIP, gateway, dnsServers          string
		domainName, ipv6Prefix, hostnameTemplate              string
		leaseDurationSeconds                                  int64
		vlanID                                                sql.NullInt64
		enabled                                                int
	)
	if err := row.Scan(&id, &sn.Name, &sn.Description, &network, &startIP, &endIP, &gateway, &dnsServers,
		&domainName, &leaseDurationSeconds, &vlanID, &ipv6Prefix, &hostnameTemplate, &enabled); err != nil {
		return sn, err
	}
	sn.ID = uuid.MustParse(id)
	if _, cidr, err := net.ParseCIDR(network); err == nil && cidr != nil {
		sn.Network = *cidr
	}
	sn.StartIP = net.ParseIP(startIP)
	sn.EndIP = net.ParseIP(endIP)
	sn.Gateway = net.ParseIP(gateway)
	sn.DNSServers = csvToIPList(dnsServers)
	sn.DomainName = domainName
	sn.LeaseDuration = time.Duration(leaseDurationSeconds) * time.Second
	sn.VLANID = intPtrFromNullable(vlanID)
	if ipv6Prefix != "" {
		if _, cidr, err := net.ParseCIDR(ipv6Prefix); err == nil {
			sn.IPv6Prefix = cidr
		}
	}
	sn.HostnameTemplate = hostnameTemplate
	sn.Enabled = enabled != 0
	return sn, nil
}

// LoadSubnets implements store.Store.
func (s *Store) LoadSubnets(ctx context.Context) ([]model.Subnet, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, network, start_ip, end_ip, gateway, dns_servers,
			domain_name, lease_duration_seconds, vlan_id, ipv6_prefix, hostname_template, enabled
		from subnets where enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load subnets: %w", err)
	}
	defer rows.Close()

	var out []model.Subnet
	for rows.Next() {
		sn, err := scanSubnet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan subnet: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// UpsertReservation implements store.Store.
func (s *Store) UpsertReservation(ctx context.Context, r model.Reservation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into reservations (id, subnet_id, mac, ip, hostname, description)
		values (?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			subnet_id=excluded.subnet_id, mac=excluded.mac, ip=excluded.ip,
			hostname=excluded.hostname, description=excluded.description`,
		r.ID.String(), r.SubnetID.String(), r.MAC.Bytes(), r.IP.String(), r.Hostname, r.Description)
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert reservation %s: %w", r.ID, err)
	}
	return nil
}

func scanReservation(row interface{ Scan(dest ...any) error }) (model.Reservation, error) {
	var (
		r                  model.Reservation
		id, subnetID       string
		macBytes           []byte
		ip                 string
	)
	if err := row.Scan(&id, &subnetID, &macBytes, &ip, &r.Hostname, &r.Description); err != nil {
		return r, err
	}
	r.ID = uuid.MustParse(id)
	r.SubnetID = uuid.MustParse(subnetID)
	r.MAC = model.MACFromBytes(macBytes)
	r.IP = net.ParseIP(ip)
	return r, nil
}

// FindReservation implements store.Store.
func (s *Store) FindReservation(ctx context.Context, subnetID uuid.UUID, mac model.MAC) (*model.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, subnet_id, mac, ip, hostname, description from reservations
		where subnet_id = ? and mac = ?`, subnetID.String(), mac.Bytes())
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find reservation: %w", err)
	}
	return &r, nil
}

// FindReservationByIP implements store.Store.
func (s *Store) FindReservationByIP(ctx context.Context, subnetID uuid.UUID, ip net.IP) (*model.Reservation, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, subnet_id, mac, ip, hostname, description from reservations
		where subnet_id = ? and ip = ?`, subnetID.String(), ip.String())
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find reservation by ip: %w", err)
	}
	return &r, nil
}

func scanLease(row interface{ Scan(dest ...any) error }) (model.Lease, error) {
	var (
		l                       model.Lease
		id, subnetID            string
		macBytes                []byte
		ip                      string
		leaseStart, leaseEnd    int64
		state                   string
	)
	if err := row.Scan(&id, &subnetID, &macBytes, &ip, &l.Hostname, &leaseStart, &leaseEnd, &state,
		&l.ClientIdentifier, &l.VendorClass, &l.UserClass); err != nil {
		return l, err
	}
	l.ID = uuid.MustParse(id)
	l.SubnetID = uuid.MustParse(subnetID)
	l.MAC = model.MACFromBytes(macBytes)
	l.IP = net.ParseIP(ip)
	l.LeaseStart = time.Unix(leaseStart, 0).UTC()
	l.LeaseEnd = time.Unix(leaseEnd, 0).UTC()
	l.State = model.LeaseState(state)
	return l, nil
}

const leaseColumns = `id, subnet_id, mac, ip, hostname, lease_start, lease_end, state, client_identifier, vendor_class, user_class`

// FindActiveLeaseByMAC implements store.Store.
func (s *Store) FindActiveLeaseByMAC(ctx context.Context, mac model.MAC, now time.Time) (*model.Lease, error) {
	row := s.db.QueryRowContext(ctx, `select `+leaseColumns+` from leases
		where mac = ? and state = ? and lease_end > ?`,
		mac.Bytes(), model.LeaseActive, now.Unix())
	l, err := scanLease(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find active lease by mac: %w", err)
	}
	return &l, nil
}

// IsIPInUse implements store.Store.
func (s *Store) IsIPInUse(ctx context.Context, subnetID uuid.UUID, ip net.IP, now time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `select count(*) from leases
		where subnet_id = ? and ip = ? and state = ? and lease_end > ?`,
		subnetID.String(), ip.String(), model.LeaseActive, now.Unix()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: is ip in use (lease): %w", err)
	}
	if count > 0 {
		return true, nil
	}
	err = s.db.QueryRowContext(ctx, `select count(*) from reservations
		where subnet_id = ? and ip = ?`, subnetID.String(), ip.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: is ip in use (reservation): %w", err)
	}
	return count > 0, nil
}

// IsDeclined implements store.Store.
func (s *Store) IsDeclined(ctx context.Context, subnetID uuid.UUID, ip net.IP, now time.Time, cooldown time.Duration) (bool, error) {
	var declinedAt int64
	err := s.db.QueryRowContext(ctx, `select declined_at from declined_ips
		where subnet_id = ? and ip = ?`, subnetID.String(), ip.String()).Scan(&declinedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlitestore: is declined: %w", err)
	}
	return time.Unix(declinedAt, 0).Add(cooldown).After(now), nil
}

// UpsertLease implements store.Store. A lease is unique per MAC globally:
// any existing lease for l.MAC is replaced within a single transaction,
// matching spec's "ON CONFLICT BY mac REPLACE" contract. The insert can
// still fail against idx_leases_active_ip if another active lease already
// holds l.IP in l.SubnetID; that failure is reported as flowerr.ErrConflict.
func (s *Store) UpsertLease(ctx context.Context, l model.Lease) (*model.Lease, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: upsert lease begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from leases where mac = ?`, l.MAC.Bytes()); err != nil {
		return nil, fmt.Errorf("sqlitestore: upsert lease delete prior: %w", err)
	}

	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err = tx.ExecContext(ctx, `insert into leases (`+leaseColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.SubnetID.String(), l.MAC.Bytes(), l.IP.String(), l.Hostname,
		l.LeaseStart.Unix(), l.LeaseEnd.Unix(), string(l.State),
		l.ClientIdentifier, l.VendorClass, l.UserClass)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("sqlitestore: upsert lease insert: %w", flowerr.ErrConflict)
		}
		return nil, fmt.Errorf("sqlitestore: upsert lease insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: upsert lease commit: %w", err)
	}
	return &l, nil
}

// ExtendLease implements store.Store.
func (s *Store) ExtendLease(ctx context.Context, leaseID uuid.UUID, newEnd time.Time) error {
	_, err := s.db.ExecContext(ctx, `update leases set lease_end = ? where id = ?`,
		newEnd.Unix(), leaseID.String())
	if err != nil {
		return fmt.Errorf("sqlitestore: extend lease %s: %w", leaseID, err)
	}
	return nil
}

// ReleaseLease implements store.Store.
func (s *Store) ReleaseLease(ctx context.Context, mac model.MAC, ip net.IP) (bool, error) {
	res, err := s.db.ExecContext(ctx, `update leases set state = ?
		where mac = ? and ip = ? and state = ?`,
		model.LeaseReleased, mac.Bytes(), ip.String(), model.LeaseActive)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: release lease: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ExpireDueLeases implements store.Store.
func (s *Store) ExpireDueLeases(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `update leases set state = ?
		where state = ? and lease_end < ?`, model.LeaseExpired, model.LeaseActive, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: expire due leases: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeclineLease implements store.Store.
func (s *Store) DeclineLease(ctx context.Context, mac model.MAC, ip net.IP, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: decline lease begin: %w", err)
	}
	defer tx.Rollback()

	var subnetID string
	err = tx.QueryRowContext(ctx, `select subnet_id from leases where mac = ? and ip = ?`,
		mac.Bytes(), ip.String()).Scan(&subnetID)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlitestore: decline lease lookup subnet: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `update leases set state = ? where mac = ? and ip = ?`,
		model.LeaseDeclined, mac.Bytes(), ip.String()); err != nil {
		return fmt.Errorf("sqlitestore: decline lease update: %w", err)
	}

	if subnetID != "" {
		_, err = tx.ExecContext(ctx, `insert into declined_ips (subnet_id, ip, declined_at)
			values (?, ?, ?)
			on conflict(subnet_id, ip) do update set declined_at=excluded.declined_at`,
			subnetID, ip.String(), now.Unix())
		if err != nil {
			return fmt.Errorf("sqlitestore: decline lease cooldown insert: %w", err)
		}
	}
	return tx.Commit()
}

// ActiveLeases implements store.Store.
func (s *Store) ActiveLeases(ctx context.Context) ([]model.Lease, error) {
	rows, err := s.db.QueryContext(ctx, `select `+leaseColumns+` from leases where state = ?`, model.LeaseActive)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: active leases: %w", err)
	}
	defer rows.Close()

	var out []model.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan active lease: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpsertZone implements store.Store.
func (s *Store) UpsertZone(ctx context.Context, z model.DNSZone) error {
	_, err := s.db.ExecContext(ctx, `
		insert into dns_zones (id, name, serial_number, refresh_interval, retry_interval,
			expire_interval, minimum_ttl, primary_ns, admin_email)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			name=excluded.name, serial_number=excluded.serial_number,
			refresh_interval=excluded.refresh_interval, retry_interval=excluded.retry_interval,
			expire_interval=excluded.expire_interval, minimum_ttl=excluded.minimum_ttl,
			primary_ns=excluded.primary_ns, admin_email=excluded.admin_email`,
		z.ID.String(), z.Name, z.SerialNumber, z.RefreshInterval, z.RetryInterval,
		z.ExpireInterval, z.MinimumTTL, z.PrimaryNS, z.AdminEmail)
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert zone %s: %w", z.Name, err)
	}
	return nil
}

// FindZone implements store.Store.
func (s *Store) FindZone(ctx context.Context, name string) (*model.DNSZone, error) {
	var (
		z  model.DNSZone
		id string
	)
	err := s.db.QueryRowContext(ctx, `select id, name, serial_number, refresh_interval, retry_interval,
		expire_interval, minimum_ttl, primary_ns, admin_email from dns_zones where name = ?`, name).
		Scan(&id, &z.Name, &z.SerialNumber, &z.RefreshInterval, &z.RetryInterval,
			&z.ExpireInterval, &z.MinimumTTL, &z.PrimaryNS, &z.AdminEmail)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find zone %s: %w", name, err)
	}
	z.ID = uuid.MustParse(id)
	return &z, nil
}

// BumpZoneSerial implements store.Store.
func (s *Store) BumpZoneSerial(ctx context.Context, zoneID uuid.UUID) (uint32, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: bump serial begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `update dns_zones set serial_number = serial_number + 1 where id = ?`,
		zoneID.String()); err != nil {
		return 0, fmt.Errorf("sqlitestore: bump serial update: %w", err)
	}
	var serial uint32
	if err := tx.QueryRowContext(ctx, `select serial_number from dns_zones where id = ?`,
		zoneID.String()).Scan(&serial); err != nil {
		return 0, fmt.Errorf("sqlitestore: bump serial read back: %w", err)
	}
	return serial, tx.Commit()
}

// UpsertDynamicRecord implements store.Store.
func (s *Store) UpsertDynamicRecord(ctx context.Context, zoneID uuid.UUID, name string, rtype model.DNSRecordType, value string, ttl uint32) (bool, error) {
	var existingIsDynamic sql.NullInt64
	err := s.db.QueryRowContext(ctx, `select is_dynamic from dns_records
		where zone_id = ? and name = ? and type = ?`, zoneID.String(), name, string(rtype)).Scan(&existingIsDynamic)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("sqlitestore: upsert dynamic record lookup: %w", err)
	}
	if err == nil && existingIsDynamic.Int64 == 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		insert into dns_records (id, zone_id, name, type, value, ttl, is_dynamic)
		values (?, ?, ?, ?, ?, ?, 1)
		on conflict(zone_id, name, type) do update set value=excluded.value, ttl=excluded.ttl, is_dynamic=1`,
		uuid.New().String(), zoneID.String(), name, string(rtype), value, ttl)
	if err != nil {
		return false, fmt.Errorf("sqlitestore: upsert dynamic record: %w", err)
	}
	return true, nil
}

// RemoveDynamicRecord implements store.Store.
func (s *Store) RemoveDynamicRecord(ctx context.Context, zoneID uuid.UUID, name string, rtype model.DNSRecordType) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from dns_records
		where zone_id = ? and name = ? and type = ? and is_dynamic = 1`,
		zoneID.String(), name, string(rtype))
	if err != nil {
		return false, fmt.Errorf("sqlitestore: remove dynamic record: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanDelegatedPrefix(row interface{ Scan(dest ...any) error }) (model.DelegatedPrefix, error) {
	var (
		p                                          model.DelegatedPrefix
		id                                         string
		duid                                       []byte
		prefix                                     string
		preferredSeconds, validSeconds             int64
		leaseStart, leaseEnd                       int64
		state                                      string
	)
	if err := row.Scan(&id, &duid, &p.IAID, &prefix, &p.PrefixLength, &preferredSeconds, &validSeconds,
		&leaseStart, &leaseEnd, &state); err != nil {
		return p, err
	}
	p.ID = uuid.MustParse(id)
	p.ClientDUID = duid
	p.Prefix = net.ParseIP(prefix)
	p.PreferredLifetime = time.Duration(preferredSeconds) * time.Second
	p.ValidLifetime = time.Duration(validSeconds) * time.Second
	p.LeaseStart = time.Unix(leaseStart, 0).UTC()
	p.LeaseEnd = time.Unix(leaseEnd, 0).UTC()
	p.State = model.PrefixState(state)
	return p, nil
}

const prefixColumns = `id, client_duid, iaid, prefix, prefix_length, preferred_lifetime_seconds, valid_lifetime_seconds, lease_start, lease_end, state`

// FindDelegatedPrefix implements store.Store.
func (s *Store) FindDelegatedPrefix(ctx context.Context, duid []byte, iaid uint32) (*model.DelegatedPrefix, error) {
	row := s.db.QueryRowContext(ctx, `select `+prefixColumns+` from delegated_prefixes
		where client_duid = ? and iaid = ?`, duid, iaid)
	p, err := scanDelegatedPrefix(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: find delegated prefix: %w", err)
	}
	return &p, nil
}

// UpsertDelegatedPrefix implements store.Store.
func (s *Store) UpsertDelegatedPrefix(ctx context.Context, p model.DelegatedPrefix) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into delegated_prefixes (`+prefixColumns+`)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		on conflict(client_duid, iaid) do update set
			prefix=excluded.prefix, prefix_length=excluded.prefix_length,
			preferred_lifetime_seconds=excluded.preferred_lifetime_seconds,
			valid_lifetime_seconds=excluded.valid_lifetime_seconds,
			lease_start=excluded.lease_start, lease_end=excluded.lease_end, state=excluded.state`,
		p.ID.String(), p.ClientDUID, p.IAID, p.Prefix.String(), p.PrefixLength,
		int64(p.PreferredLifetime/time.Second), int64(p.ValidLifetime/time.Second),
		p.LeaseStart.Unix(), p.LeaseEnd.Unix(), string(p.State))
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert delegated prefix: %w", err)
	}
	return nil
}

// ReleaseDelegatedPrefix implements store.Store.
func (s *Store) ReleaseDelegatedPrefix(ctx context.Context, duid []byte, iaid uint32) error {
	_, err := s.db.ExecContext(ctx, `update delegated_prefixes set state = ?
		where client_duid = ? and iaid = ?`, model.PrefixAvailable, duid, iaid)
	if err != nil {
		return fmt.Errorf("sqlitestore: release delegated prefix: %w", err)
	}
	return nil
}

// ExpireDuePrefixes implements store.Store.
func (s *Store) ExpireDuePrefixes(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `update delegated_prefixes set state = ?
		where state = ? and lease_end < ?`, model.PrefixExpired, model.PrefixDelegated, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: expire due prefixes: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReclaimExpiredPrefixes implements store.Store.
func (s *Store) ReclaimExpiredPrefixes(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	cutoff := now.Add(-grace).Unix()
	res, err := s.db.ExecContext(ctx, `update delegated_prefixes set state = ?
		where state = ? and lease_end < ?`, model.PrefixAvailable, model.PrefixExpired, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: reclaim expired prefixes: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PoolDelegations implements store.Store.
func (s *Store) PoolDelegations(ctx context.Context, poolPrefix net.IP, poolLen int) ([]model.DelegatedPrefix, error) {
	rows, err := s.db.QueryContext(ctx, `select `+prefixColumns+` from delegated_prefixes where state != ?`,
		model.PrefixAvailable)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: pool delegations: %w", err)
	}
	defer rows.Close()

	pool := &net.IPNet{IP: poolPrefix, Mask: net.CIDRMask(poolLen, 128)}
	var out []model.DelegatedPrefix
	for rows.Next() {
		p, err := scanDelegatedPrefix(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: scan delegated prefix: %w", err)
		}
		if pool.Contains(p.Prefix) {
			out = append(out, p)
		}
	}
	return out, rows.Err()
}
