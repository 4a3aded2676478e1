package sqlitestore

const schema = `
create table if not exists subnets (
	id text primary key,
	name text not null,
	description text not null default '',
	network text not null,
	start_ip text not null,
	end_ip text not null,
	gateway text not null default '',
	dns_servers text not null default '',
	domain_name text not null default '',
	lease_duration_seconds integer not null,
	vlan_id integer,
	ipv6_prefix text not null default '',
	hostname_template text not null default '',
	enabled integer not null default 1
);

create table if not exists reservations (
	id text primary key,
	subnet_id text not null,
	mac blob not null,
	ip text not null,
	hostname text not null default '',
	description text not null default '',
	unique(subnet_id, mac),
	unique(subnet_id, ip)
);

create table if not exists leases (
	id text primary key,
	subnet_id text not null,
	mac blob not null,
	ip text not null,
	hostname text not null default '',
	lease_start integer not null,
	lease_end integer not null,
	state text not null,
	client_identifier text not null default '',
	vendor_class text not null default '',
	user_class text not null default ''
);
create index if not exists idx_leases_mac on leases(mac);
create index if not exists idx_leases_subnet_ip on leases(subnet_id, ip);
create unique index if not exists idx_leases_active_ip on leases(subnet_id, ip) where state = 'active';

create table if not exists declined_ips (
	subnet_id text not null,
	ip text not null,
	declined_at integer not null,
	primary key (subnet_id, ip)
);

create table if not exists dns_zones (
	id text primary key,
	name text not null unique,
	serial_number integer not null,
	refresh_interval integer not null default 0,
	retry_interval integer not null default 0,
	expire_interval integer not null default 0,
	minimum_ttl integer not null default 0,
	primary_ns text not null default '',
	admin_email text not null default ''
);

create table if not exists dns_records (
	id text primary key,
	zone_id text not null,
	name text not null,
	type text not null,
	value text not null,
	ttl integer not null,
	priority integer,
	weight integer,
	port integer,
	is_dynamic integer not null,
	unique(zone_id, name, type)
);

create table if not exists delegated_prefixes (
	id text primary key,
	client_duid blob not null,
	iaid integer not null,
	prefix text not null,
	prefix_length integer not null,
	preferred_lifetime_seconds integer not null,
	valid_lifetime_seconds integer not null,
	lease_start integer not null,
	lease_end integer not null,
	state text not null,
	unique(client_duid, iaid)
);
`
