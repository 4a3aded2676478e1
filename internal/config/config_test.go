package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdns/flowdns/internal/flowerr"
)

const sampleYAML = `
store_dsn: /var/lib/flowdns/flowdns.db
server_id: "192.168.10.1"
metrics_listen: "127.0.0.1:9116"
dhcp4:
  listen: "0.0.0.0:67"
dhcp6:
  listen: "[::]:547"
subnets:
  - name: office
    network: 192.168.10.0/24
    start_ip: 192.168.10.100
    end_ip: 192.168.10.200
    gateway: 192.168.10.1
    domain_name: lan
    lease_duration: 1h
    dns_servers: ["192.168.10.1"]
    ipv6_prefix:
      prefix: "2001:db8::/64"
      start_ip: "2001:db8::100"
      end_ip: "2001:db8::200"
    prefix_delegation:
      prefix: "2001:db8:1000::/48"
      delegation_length: 56
zones:
  - name: lan
    primary_ns: ns1.lan.
    admin_email: admin.lan.
  - name: 10.168.192.in-addr.arpa.
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flowdns.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesSubnetsPoolsAndZones(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Subnets, 1)
	sc := cfg.Subnets[0]
	assert.Equal(t, "office", sc.Subnet.Name)
	assert.Equal(t, "lan", sc.Subnet.DomainName)
	assert.Equal(t, time.Hour, sc.Subnet.LeaseDuration)
	assert.True(t, sc.Subnet.Enabled)
	require.NotNil(t, sc.V6Pool)
	assert.Equal(t, "2001:db8::100", sc.V6Pool.StartIP.String())
	require.NotNil(t, sc.PDPool)
	assert.Equal(t, 56, sc.PDPool.DelegationLength)

	require.Len(t, cfg.Zones, 2)
	assert.Equal(t, "lan", cfg.Zones[0].Name)
	assert.Equal(t, uint32(1), cfg.Zones[0].SerialNumber)
	assert.Equal(t, int32(3600), cfg.Zones[0].RefreshInterval)

	assert.Equal(t, "192.168.10.1", cfg.ServerID.String())
	assert.Equal(t, "127.0.0.1:9116", cfg.MetricsListen)
	assert.Equal(t, 67, cfg.DHCP4Listen.Port)
	assert.Equal(t, 547, cfg.DHCP6Listen.Port)
}

func TestLoadRejectsMissingSubnets(t *testing.T) {
	path := writeConfig(t, "server_id: 10.0.0.1\nstore_dsn: /tmp/flowdns.db\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedNetwork(t *testing.T) {
	path := writeConfig(t, `
server_id: "10.0.0.1"
subnets:
  - name: bad
    network: not-a-cidr
    start_ip: 10.0.0.2
    end_ip: 10.0.0.10
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvertedIPRange(t *testing.T) {
	path := writeConfig(t, `
server_id: "10.0.0.1"
subnets:
  - name: inverted
    network: 10.0.0.0/24
    start_ip: 10.0.0.200
    end_ip: 10.0.0.100
    gateway: 10.0.0.1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flowerr.ErrInvariant), "start_ip after end_ip must be an invariant violation")
}

func TestLoadRejectsGatewayOutsideNetwork(t *testing.T) {
	path := writeConfig(t, `
server_id: "10.0.0.1"
subnets:
  - name: stray-gateway
    network: 10.0.0.0/24
    start_ip: 10.0.0.100
    end_ip: 10.0.0.200
    gateway: 10.0.1.1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flowerr.ErrInvariant), "a gateway outside network must be an invariant violation")
}

func TestLoadRejectsOverlappingEnabledSubnets(t *testing.T) {
	path := writeConfig(t, `
server_id: "10.0.0.1"
subnets:
  - name: first
    network: 10.0.0.0/23
    start_ip: 10.0.0.100
    end_ip: 10.0.0.200
    gateway: 10.0.0.1
  - name: second
    network: 10.0.1.0/24
    start_ip: 10.0.1.100
    end_ip: 10.0.1.200
    gateway: 10.0.1.1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flowerr.ErrInvariant), "two enabled subnets whose networks overlap must be an invariant violation")
}

func TestLoadAllowsOverlapWithDisabledSubnet(t *testing.T) {
	path := writeConfig(t, `
server_id: "10.0.0.1"
subnets:
  - name: first
    network: 10.0.0.0/23
    start_ip: 10.0.0.100
    end_ip: 10.0.0.200
    gateway: 10.0.0.1
  - name: second
    network: 10.0.1.0/24
    start_ip: 10.0.1.100
    end_ip: 10.0.1.200
    gateway: 10.0.1.1
    enabled: false
`)
	_, err := Load(path)
	require.NoError(t, err, "a disabled subnet's network must not be checked for overlap")
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	require.NoError(t, Watch(ctx, path, func(cfg *Config) {
		reloaded <- cfg
	}))

	updated := sampleYAML + "\n# touch\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Len(t, cfg.Subnets, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload notification")
	}
}
