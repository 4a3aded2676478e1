package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MAC is the canonical, 6-raw-byte representation of a hardware address.
// The store persists exactly this form; the admin surface and the wire
// codecs accept colon- or dash-separated text and normalize to it.
type MAC [6]byte

// ParseMAC accepts "aa:bb:cc:dd:ee:ff" or "aa-bb-cc-dd-ee-ff" and returns the
// canonical 6-byte form.
func ParseMAC(s string) (MAC, error) {
	var m MAC
	norm := strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(norm, ":")
	if len(parts) != 6 {
		return m, fmt.Errorf("model: invalid MAC address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return m, fmt.Errorf("model: invalid MAC address %q", s)
		}
		b, err := hex.DecodeString(p)
		if err != nil {
			return m, fmt.Errorf("model: invalid MAC address %q: %w", s, err)
		}
		m[i] = b[0]
	}
	return m, nil
}

// MACFromBytes truncates or zero-pads src into a MAC, matching the DHCPv4
// chaddr convention of carrying hlen significant bytes in a 16-byte field.
func MACFromBytes(src []byte) MAC {
	var m MAC
	n := len(src)
	if n > 6 {
		n = 6
	}
	copy(m[:n], src[:n])
	return m
}

// String renders the lowercase colon-separated canonical form.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Bytes returns the raw 6-byte slice.
func (m MAC) Bytes() []byte {
	return m[:]
}

// IsZero reports whether m is the all-zero address.
func (m MAC) IsZero() bool {
	return m == MAC{}
}
