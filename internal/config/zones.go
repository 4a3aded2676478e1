package config

import (
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/flowdns/flowdns/internal/model"
)

func (c *Config) parseZones() ([]model.DNSZone, error) {
	raw := c.v.Get("zones")
	if raw == nil {
		return nil, nil
	}
	list := cast.ToSlice(raw)
	if list == nil {
		return nil, ConfigErrorFromString("zones: not a list")
	}

	out := make([]model.DNSZone, 0, len(list))
	for idx, val := range list {
		m := cast.ToStringMap(val)
		if m == nil {
			return nil, ConfigErrorFromString("zones[%d]: not a map", idx)
		}
		name := cast.ToString(m["name"])
		if name == "" {
			return nil, ConfigErrorFromString("zones[%d]: missing `name`", idx)
		}
		out = append(out, model.DNSZone{
			ID:              uuid.New(),
			Name:            name,
			SerialNumber:    uint32(cast.ToUint(orDefault(m["serial_number"], 1))),
			RefreshInterval: int32(cast.ToInt(orDefault(m["refresh_interval"], 3600))),
			RetryInterval:   int32(cast.ToInt(orDefault(m["retry_interval"], 600))),
			ExpireInterval:  int32(cast.ToInt(orDefault(m["expire_interval"], 604800))),
			MinimumTTL:      int32(cast.ToInt(orDefault(m["minimum_ttl"], 300))),
			PrimaryNS:       cast.ToString(m["primary_ns"]),
			AdminEmail:      cast.ToString(m["admin_email"]),
		})
	}
	return out, nil
}

func orDefault(v interface{}, def int) interface{} {
	if v == nil {
		return def
	}
	return v
}
