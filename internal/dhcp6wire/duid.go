package dhcp6wire

import (
	"encoding/binary"
	"time"
)

// DUID type codes (RFC 8415 §11).
const (
	DUIDTypeLLT uint16 = 1
	DUIDTypeEN  uint16 = 2
	DUIDTypeLL  uint16 = 3
)

// duidEpoch is the DUID-LLT time base: 2000-01-01 00:00:00 UTC.
var duidEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// BuildDUIDLLT encodes a DUID-LLT (RFC 8415 §11.2): type, hardware type,
// seconds since duidEpoch, then the link-layer address. at is truncated to
// the epoch if it precedes it.
func BuildDUIDLLT(hwType uint16, linkLayerAddr []byte, at time.Time) []byte {
	secs := at.Sub(duidEpoch).Seconds()
	if secs < 0 {
		secs = 0
	}
	buf := make([]byte, 0, 8+len(linkLayerAddr))
	buf = binary.BigEndian.AppendUint16(buf, DUIDTypeLLT)
	buf = binary.BigEndian.AppendUint16(buf, hwType)
	buf = binary.BigEndian.AppendUint32(buf, uint32(secs))
	buf = append(buf, linkLayerAddr...)
	return buf
}
