// Package dhcp6wire implements the DHCPv6 (RFC 8415) wire codec: the 1-byte
// msg-type + 3-byte transaction-id header, and the repeated
// (code:u16, len:u16, value) option stream. Like dhcp4wire, this is a
// hand-rolled codec -- see DESIGN.md.
package dhcp6wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed DHCPv6 client/server message header: 1 byte
// msg-type + 3 bytes transaction id.
const HeaderSize = 4

// MessageType identifies a DHCPv6 message (RFC 8415 §7.3).
type MessageType byte

const (
	MessageTypeSolicit            MessageType = 1
	MessageTypeAdvertise          MessageType = 2
	MessageTypeRequest            MessageType = 3
	MessageTypeConfirm            MessageType = 4
	MessageTypeRenew              MessageType = 5
	MessageTypeRebind             MessageType = 6
	MessageTypeReply              MessageType = 7
	MessageTypeRelease            MessageType = 8
	MessageTypeDecline            MessageType = 9
	MessageTypeReconfigure        MessageType = 10
	MessageTypeInformationRequest MessageType = 11
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeSolicit:
		return "SOLICIT"
	case MessageTypeAdvertise:
		return "ADVERTISE"
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeConfirm:
		return "CONFIRM"
	case MessageTypeRenew:
		return "RENEW"
	case MessageTypeRebind:
		return "REBIND"
	case MessageTypeReply:
		return "REPLY"
	case MessageTypeRelease:
		return "RELEASE"
	case MessageTypeDecline:
		return "DECLINE"
	case MessageTypeReconfigure:
		return "RECONFIGURE"
	case MessageTypeInformationRequest:
		return "INFORMATION-REQUEST"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(m))
	}
}

// Option codes used by FlowDNS.
const (
	OptClientID       uint16 = 1
	OptServerID       uint16 = 2
	OptIANA           uint16 = 3
	OptIATA           uint16 = 4
	OptIAAddr         uint16 = 5
	OptOptionRequest  uint16 = 6
	OptStatusCode     uint16 = 13
	OptRapidCommit    uint16 = 14
	OptDNSServers     uint16 = 23
	OptDomainList     uint16 = 24
	OptIAPD           uint16 = 25
	OptIAPrefix       uint16 = 26
)

// Status codes (RFC 8415 §21.13), mirrored as plain constants -- FlowDNS
// imports insomniacslk/dhcp/iana for the broader IANA registries it doesn't
// define itself, but keeps the handful of codes it actually emits local and
// explicit for readability at call sites.
const (
	StatusSuccess      uint16 = 0
	StatusNoAddrsAvail uint16 = 2
	StatusNoBinding    uint16 = 3
	StatusNoPrefixAvail uint16 = 6
)

// ErrMalformedShort is returned by Parse/ParseOptions on truncated input.
type ErrMalformedShort struct {
	Len int
}

func (e *ErrMalformedShort) Error() string {
	return fmt.Sprintf("dhcp6wire: packet too short: %d bytes", e.Len)
}

// Option is a single (code, data) TLV entry.
type Option struct {
	Code uint16
	Data []byte
}

// Packet is a parsed top-level DHCPv6 client/server message (not a relay
// frame; prefix delegation over relays is out of scope per spec.md).
type Packet struct {
	Type          MessageType
	TransactionID [3]byte
	Options       []Option
}

// Parse decodes a DHCPv6 client/server message.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, &ErrMalformedShort{Len: len(data)}
	}
	p := &Packet{Type: MessageType(data[0])}
	copy(p.TransactionID[:], data[1:4])
	opts, err := parseOptions(data[HeaderSize:])
	if err != nil {
		return nil, err
	}
	p.Options = opts
	return p, nil
}

func parseOptions(data []byte) ([]Option, error) {
	var opts []Option
	i := 0
	for i < len(data) {
		if i+4 > len(data) {
			return nil, &ErrMalformedShort{Len: len(data)}
		}
		code := binary.BigEndian.Uint16(data[i : i+2])
		length := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		start := i + 4
		if start+length > len(data) {
			return nil, &ErrMalformedShort{Len: len(data)}
		}
		opts = append(opts, Option{Code: code, Data: append([]byte(nil), data[start:start+length]...)})
		i = start + length
	}
	return opts, nil
}

// ToBytes serializes the message.
func (p *Packet) ToBytes() []byte {
	buf := make([]byte, 0, HeaderSize+32)
	buf = append(buf, byte(p.Type))
	buf = append(buf, p.TransactionID[:]...)
	for _, opt := range p.Options {
		buf = binary.BigEndian.AppendUint16(buf, opt.Code)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(opt.Data)))
		buf = append(buf, opt.Data...)
	}
	return buf
}

// GetOption returns the first option with the given code, or nil.
func (p *Packet) GetOption(code uint16) *Option {
	for i := range p.Options {
		if p.Options[i].Code == code {
			return &p.Options[i]
		}
	}
	return nil
}

// SetOption replaces the first option with this code in place, or appends.
func (p *Packet) SetOption(code uint16, data []byte) {
	for i := range p.Options {
		if p.Options[i].Code == code {
			p.Options[i].Data = data
			return
		}
	}
	p.Options = append(p.Options, Option{Code: code, Data: data})
}

// ClientDUID returns the raw bytes of option 1, if present.
func (p *Packet) ClientDUID() []byte {
	opt := p.GetOption(OptClientID)
	if opt == nil {
		return nil
	}
	return append([]byte(nil), opt.Data...)
}

// ServerDUID returns the raw bytes of option 2, if present.
func (p *Packet) ServerDUID() []byte {
	opt := p.GetOption(OptServerID)
	if opt == nil {
		return nil
	}
	return append([]byte(nil), opt.Data...)
}

// IsOptionRequested reports whether code appears in the client's Option
// Request Option (6).
func (p *Packet) IsOptionRequested(code uint16) bool {
	opt := p.GetOption(OptOptionRequest)
	if opt == nil {
		return false
	}
	for i := 0; i+2 <= len(opt.Data); i += 2 {
		if binary.BigEndian.Uint16(opt.Data[i:i+2]) == code {
			return true
		}
	}
	return false
}
