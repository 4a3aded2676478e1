// Package config loads FlowDNS's YAML configuration (subnets, IPv6 pools,
// delegated-prefix pools, DNS zones, listen addresses, lease store DSN)
// through spf13/viper, and watches the config file for changes via
// fsnotify so an admin edit can trigger an atomic subnet-map reload
// without a restart.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/logger"
	"github.com/flowdns/flowdns/internal/model"
)

var log = logger.GetLogger("config")

// defaultExpirationInterval matches internal/lease.DefaultExpirationInterval;
// duplicated rather than imported so internal/config has no dependency on
// internal/lease.
const defaultExpirationInterval = 300 * time.Second

// Config is FlowDNS's fully parsed, ready-to-wire configuration.
type Config struct {
	v *viper.Viper

	StoreDSN           string
	ServerID           net.IP
	DHCP4Listen        *net.UDPAddr
	DHCP6Listen        *net.UDPAddr
	MetricsListen      string
	ExpirationInterval time.Duration
	DHCP6LeaseTime     time.Duration

	Subnets []SubnetConfig
	Zones   []model.DNSZone
}

// SubnetConfig is one admin-declared subnet plus its optional IPv6
// stateful-address pool and IA_PD delegation pool.
type SubnetConfig struct {
	Subnet model.Subnet
	V6Pool *allocator.V6Pool
	PDPool *allocator.PDPool
}

// New returns an empty Config wrapping a fresh viper instance.
func New() *Config {
	return &Config{v: viper.New()}
}

// Load reads the YAML file at path (or FlowDNS's default search path if
// path is empty) and parses it into a Config.
func Load(path string) (*Config, error) {
	log.Info("loading configuration")
	c := New()
	c.v.SetConfigType("yml")
	if path != "" {
		c.v.SetConfigFile(path)
	} else {
		c.v.SetConfigName("flowdns")
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$XDG_CONFIG_HOME/flowdns/")
		c.v.AddConfigPath("$HOME/.flowdns/")
		c.v.AddConfigPath("/etc/flowdns/")
	}

	if err := c.v.ReadInConfig(); err != nil {
		return nil, ConfigErrorFromError(err)
	}
	if err := c.parse(); err != nil {
		return nil, err
	}
	return c, nil
}

// ConfigFile reports the path viper resolved the configuration to, for use
// by the fsnotify watcher.
func (c *Config) ConfigFile() string {
	return c.v.ConfigFileUsed()
}

func (c *Config) parse() error {
	c.StoreDSN = c.v.GetString("store_dsn")
	if c.StoreDSN == "" {
		c.StoreDSN = "flowdns.db"
	}

	c.MetricsListen = c.v.GetString("metrics_listen")
	if c.MetricsListen == "" {
		c.MetricsListen = "127.0.0.1:9116"
	}

	c.ExpirationInterval = c.v.GetDuration("expiration_interval")
	if c.ExpirationInterval <= 0 {
		c.ExpirationInterval = defaultExpirationInterval
	}

	serverIDStr := c.v.GetString("server_id")
	if serverIDStr == "" {
		return ConfigErrorFromString("missing `server_id` (the DHCPv4 server identifier address)")
	}
	serverID := net.ParseIP(serverIDStr).To4()
	if serverID == nil {
		return ConfigErrorFromString("server_id: %q is not a valid IPv4 address", serverIDStr)
	}
	c.ServerID = serverID

	dhcp4Addr, err := parseListenAddr(c.v.GetString("dhcp4.listen"), ":67")
	if err != nil {
		return ConfigErrorFromString("dhcp4.listen: %v", err)
	}
	c.DHCP4Listen = dhcp4Addr

	dhcp6Addr, err := parseListenAddr(c.v.GetString("dhcp6.listen"), ":547")
	if err != nil {
		return ConfigErrorFromString("dhcp6.listen: %v", err)
	}
	c.DHCP6Listen = dhcp6Addr

	c.DHCP6LeaseTime = c.v.GetDuration("dhcp6.lease_time")
	if c.DHCP6LeaseTime <= 0 {
		c.DHCP6LeaseTime = time.Hour
	}

	subnets, err := c.parseSubnets()
	if err != nil {
		return err
	}
	c.Subnets = subnets

	zones, err := c.parseZones()
	if err != nil {
		return err
	}
	c.Zones = zones
	return nil
}

func parseListenAddr(addr, fallback string) (*net.UDPAddr, error) {
	if addr == "" {
		addr = fallback
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	p, err := cast.ToIntE(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}
	ip := net.ParseIP(host)
	if host != "" && ip == nil {
		return nil, fmt.Errorf("invalid listen IP %q", host)
	}
	return &net.UDPAddr{IP: ip, Port: p}, nil
}
