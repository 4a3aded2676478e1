package config

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/flowdns/flowdns/internal/allocator"
	"github.com/flowdns/flowdns/internal/flowerr"
	"github.com/flowdns/flowdns/internal/model"
)

func (c *Config) parseSubnets() ([]SubnetConfig, error) {
	raw := c.v.Get("subnets")
	if raw == nil {
		return nil, ConfigErrorFromString("need at least one subnet")
	}
	list := cast.ToSlice(raw)
	if list == nil {
		return nil, ConfigErrorFromString("subnets: not a list")
	}

	out := make([]SubnetConfig, 0, len(list))
	for idx, val := range list {
		m := cast.ToStringMap(val)
		if m == nil {
			return nil, ConfigErrorFromString("subnets[%d]: not a map", idx)
		}
		sc, err := parseSubnetEntry(m)
		if err != nil {
			return nil, ConfigErrorFromString("subnets[%d]: %v", idx, err)
		}
		out = append(out, sc)
	}
	if err := validateSubnetGeometry(out); err != nil {
		return nil, ConfigErrorFromError(err)
	}
	return out, nil
}

// validateSubnetGeometry checks the invariants the allocator assumes every
// subnet already satisfies: start_ip <= end_ip, both endpoints (and the
// gateway, if set) fall inside network, and no two enabled subnets'
// networks overlap. A violation is startup-fatal.
func validateSubnetGeometry(subnets []SubnetConfig) error {
	for _, sc := range subnets {
		s := sc.Subnet
		if model.IPToUint32(s.StartIP) > model.IPToUint32(s.EndIP) {
			return geometryErrorf(s.Name, "start_ip %s is after end_ip %s", s.StartIP, s.EndIP)
		}
		if !s.Network.Contains(s.StartIP) {
			return geometryErrorf(s.Name, "start_ip %s is not within network %s", s.StartIP, s.Network.String())
		}
		if !s.Network.Contains(s.EndIP) {
			return geometryErrorf(s.Name, "end_ip %s is not within network %s", s.EndIP, s.Network.String())
		}
		if s.Gateway != nil && !s.Network.Contains(s.Gateway) {
			return geometryErrorf(s.Name, "gateway %s is not within network %s", s.Gateway, s.Network.String())
		}
	}

	for i := range subnets {
		a := subnets[i].Subnet
		if !a.Enabled {
			continue
		}
		for j := i + 1; j < len(subnets); j++ {
			b := subnets[j].Subnet
			if !b.Enabled {
				continue
			}
			if a.Network.Contains(b.Network.IP) || b.Network.Contains(a.Network.IP) {
				return geometryErrorf(a.Name, "network %s overlaps subnet %q's network %s", a.Network.String(), b.Name, b.Network.String())
			}
		}
	}
	return nil
}

func geometryErrorf(subnetName, format string, args ...interface{}) error {
	return fmt.Errorf("subnet %q: %s: %w", subnetName, fmt.Sprintf(format, args...), flowerr.ErrInvariant)
}

func parseSubnetEntry(m map[string]interface{}) (SubnetConfig, error) {
	name := cast.ToString(m["name"])
	if name == "" {
		return SubnetConfig{}, ConfigErrorFromString("missing `name`")
	}

	_, network, err := net.ParseCIDR(cast.ToString(m["network"]))
	if err != nil {
		return SubnetConfig{}, ConfigErrorFromString("invalid `network`: %v", err)
	}

	startIP := net.ParseIP(cast.ToString(m["start_ip"]))
	endIP := net.ParseIP(cast.ToString(m["end_ip"]))
	if startIP == nil || endIP == nil {
		return SubnetConfig{}, ConfigErrorFromString("`start_ip`/`end_ip` required")
	}

	s := model.Subnet{
		ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte("flowdns-subnet:"+name)),
		Name:            name,
		Description:     cast.ToString(m["description"]),
		Network:         *network,
		StartIP:         startIP,
		EndIP:           endIP,
		Gateway:         net.ParseIP(cast.ToString(m["gateway"])),
		DomainName:      cast.ToString(m["domain_name"]),
		LeaseDuration:   leaseDurationOrDefault(m["lease_duration"]),
		HostnameTemplate: cast.ToString(m["hostname_template"]),
		Enabled:         castToBoolOrDefault(m["enabled"], true),
	}
	for _, dnsServer := range cast.ToStringSlice(m["dns_servers"]) {
		if ip := net.ParseIP(dnsServer); ip != nil {
			s.DNSServers = append(s.DNSServers, ip)
		}
	}
	if vlan, ok := m["vlan_id"]; ok {
		v := cast.ToInt(vlan)
		s.VLANID = &v
	}

	var sc SubnetConfig

	if v6 := cast.ToStringMap(m["ipv6_prefix"]); v6 != nil {
		_, prefix, err := net.ParseCIDR(cast.ToString(v6["prefix"]))
		if err != nil {
			return SubnetConfig{}, ConfigErrorFromString("invalid `ipv6_prefix.prefix`: %v", err)
		}
		s.IPv6Prefix = prefix
		sc.V6Pool = &allocator.V6Pool{
			SubnetID: s.ID,
			StartIP:  net.ParseIP(cast.ToString(v6["start_ip"])),
			EndIP:    net.ParseIP(cast.ToString(v6["end_ip"])),
		}
	}
	sc.Subnet = s

	if pd := cast.ToStringMap(m["prefix_delegation"]); pd != nil {
		_, prefix, err := net.ParseCIDR(cast.ToString(pd["prefix"]))
		if err != nil {
			return SubnetConfig{}, ConfigErrorFromString("invalid `prefix_delegation.prefix`: %v", err)
		}
		ones, _ := prefix.Mask.Size()
		sc.PDPool = &allocator.PDPool{
			Prefix:           prefix.IP,
			PrefixLength:     ones,
			DelegationLength: cast.ToInt(pd["delegation_length"]),
		}
	}

	return sc, nil
}

func leaseDurationOrDefault(v interface{}) time.Duration {
	if v == nil {
		return time.Hour
	}
	d := cast.ToDuration(v)
	if d <= 0 {
		return time.Hour
	}
	return d
}

func castToBoolOrDefault(v interface{}, def bool) bool {
	if v == nil {
		return def
	}
	return cast.ToBool(v)
}
