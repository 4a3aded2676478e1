package dhcp6wire

import (
	"encoding/binary"
	"net"
	"time"
)

// IANA is a decoded Identity Association for Non-temporary Addresses
// (option 3): IAID, T1/T2 renewal timers, and the address it carries (if
// any -- FlowDNS only ever embeds zero or one IAAddr per IA_NA).
type IANA struct {
	IAID uint32
	T1   time.Duration
	T2   time.Duration
	Addr net.IP
	// PreferredLifetime/ValidLifetime are set when Addr is non-nil.
	PreferredLifetime time.Duration
	ValidLifetime     time.Duration
}

// ParseIANA decodes an IA_NA option body, extracting the first embedded
// IAAddr option, if present.
func ParseIANA(data []byte) (IANA, bool) {
	var ia IANA
	if len(data) < 12 {
		return ia, false
	}
	ia.IAID = binary.BigEndian.Uint32(data[0:4])
	ia.T1 = time.Duration(binary.BigEndian.Uint32(data[4:8])) * time.Second
	ia.T2 = time.Duration(binary.BigEndian.Uint32(data[8:12])) * time.Second

	inner, err := parseOptions(data[12:])
	if err != nil {
		return ia, true
	}
	for _, opt := range inner {
		if opt.Code == OptIAAddr && len(opt.Data) >= 24 {
			ia.Addr = net.IP(append([]byte(nil), opt.Data[0:16]...))
			ia.PreferredLifetime = time.Duration(binary.BigEndian.Uint32(opt.Data[16:20])) * time.Second
			ia.ValidLifetime = time.Duration(binary.BigEndian.Uint32(opt.Data[20:24])) * time.Second
			break
		}
	}
	return ia, true
}

// BuildIANA encodes an IA_NA option (code + length prefix included) carrying
// a single offered address.
func BuildIANA(iaid uint32, t1, t2 time.Duration, addr net.IP, preferred, valid time.Duration) Option {
	body := make([]byte, 0, 12+28)
	body = binary.BigEndian.AppendUint32(body, iaid)
	body = binary.BigEndian.AppendUint32(body, uint32(t1/time.Second))
	body = binary.BigEndian.AppendUint32(body, uint32(t2/time.Second))

	addrBody := make([]byte, 0, 24)
	addrBody = append(addrBody, addr.To16()...)
	addrBody = binary.BigEndian.AppendUint32(addrBody, uint32(preferred/time.Second))
	addrBody = binary.BigEndian.AppendUint32(addrBody, uint32(valid/time.Second))
	body = binary.BigEndian.AppendUint16(body, OptIAAddr)
	body = binary.BigEndian.AppendUint16(body, uint16(len(addrBody)))
	body = append(body, addrBody...)

	return Option{Code: OptIANA, Data: body}
}

// IAPrefixHint is a requested prefix the client hinted at inside an IA_PD
// (empty Prefix/zero PrefixLength means "no preference").
type IAPrefixHint struct {
	Prefix       net.IP
	PrefixLength int
}

// IAPD is a decoded Identity Association for Prefix Delegation (option 25).
type IAPD struct {
	IAID  uint32
	T1    time.Duration
	T2    time.Duration
	Hints []IAPrefixHint
}

// ParseIAPD decodes an IA_PD option body, collecting every embedded
// IAPrefix hint.
func ParseIAPD(data []byte) (IAPD, bool) {
	var iapd IAPD
	if len(data) < 12 {
		return iapd, false
	}
	iapd.IAID = binary.BigEndian.Uint32(data[0:4])
	iapd.T1 = time.Duration(binary.BigEndian.Uint32(data[4:8])) * time.Second
	iapd.T2 = time.Duration(binary.BigEndian.Uint32(data[8:12])) * time.Second

	inner, err := parseOptions(data[12:])
	if err != nil {
		return iapd, true
	}
	for _, opt := range inner {
		if opt.Code == OptIAPrefix && len(opt.Data) >= 25 {
			plen := int(opt.Data[8])
			prefix := net.IP(append([]byte(nil), opt.Data[9:25]...))
			iapd.Hints = append(iapd.Hints, IAPrefixHint{Prefix: prefix, PrefixLength: plen})
		}
	}
	return iapd, true
}

// BuildIAPrefix encodes a single IAPrefix option.
func BuildIAPrefix(prefix net.IP, prefixLen int, preferred, valid time.Duration) []byte {
	buf := make([]byte, 0, 25)
	buf = binary.BigEndian.AppendUint32(buf, uint32(preferred/time.Second))
	buf = binary.BigEndian.AppendUint32(buf, uint32(valid/time.Second))
	buf = append(buf, byte(prefixLen))
	buf = append(buf, prefix.To16()...)
	return buf
}

// BuildIAPD encodes an IA_PD option wrapping the given pre-built IAPrefix
// option payloads.
func BuildIAPD(iaid uint32, t1, t2 time.Duration, prefixPayloads [][]byte) Option {
	body := make([]byte, 0, 12)
	body = binary.BigEndian.AppendUint32(body, iaid)
	body = binary.BigEndian.AppendUint32(body, uint32(t1/time.Second))
	body = binary.BigEndian.AppendUint32(body, uint32(t2/time.Second))
	for _, p := range prefixPayloads {
		body = binary.BigEndian.AppendUint16(body, OptIAPrefix)
		body = binary.BigEndian.AppendUint16(body, uint16(len(p)))
		body = append(body, p...)
	}
	return Option{Code: OptIAPD, Data: body}
}

// BuildStatusCode encodes a status-code option.
func BuildStatusCode(code uint16, message string) Option {
	data := binary.BigEndian.AppendUint16(nil, code)
	data = append(data, []byte(message)...)
	return Option{Code: OptStatusCode, Data: data}
}

// BuildDNSServers encodes the DNS Recursive Name Server option (23).
func BuildDNSServers(servers []net.IP) Option {
	data := make([]byte, 0, 16*len(servers))
	for _, s := range servers {
		data = append(data, s.To16()...)
	}
	return Option{Code: OptDNSServers, Data: data}
}

// NewReplyFromRequest builds a bare DHCPv6 reply echoing the request's
// transaction id.
func NewReplyFromRequest(req *Packet, msgType MessageType) *Packet {
	return &Packet{Type: msgType, TransactionID: req.TransactionID}
}
