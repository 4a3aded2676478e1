package dhcp4wire

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDiscover() *Packet {
	p := New()
	p.Xid = 0xdeadbeef
	p.Flags = BroadcastFlag
	p.SetClientMAC([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01})
	p.SetMessageType(MessageTypeDiscover)
	p.SetOption(OptParameterRequestList, []byte{OptSubnetMask, OptRouter, OptDomainNameServer})
	p.SetHostname("my-laptop")
	return p
}

// Property 5 (round-trip): parse(serialize(parse(p))) == parse(p), ignoring
// pad bytes -- compared here via structural equality on the typed Packet.
func TestRoundTrip(t *testing.T) {
	p1 := sampleDiscover()
	wire := p1.ToBytes()

	p2, err := Parse(wire)
	require.NoError(t, err)

	wire2 := p2.ToBytes()
	p3, err := Parse(wire2)
	require.NoError(t, err)

	if diff := cmp.Diff(p2, p3); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsShortFrame(t *testing.T) {
	_, err := Parse(make([]byte, HeaderSize-1))
	require.Error(t, err)
	var shortErr *ErrMalformedShort
	require.ErrorAs(t, err, &shortErr)
}

func TestParseMissingCookieYieldsNoOptions(t *testing.T) {
	data := make([]byte, HeaderSize+10)
	p, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, p.Options)
}

func TestParseTruncatedOptionStopsNotErrors(t *testing.T) {
	data := make([]byte, HeaderSize+4+3)
	copy(data[HeaderSize:], MagicCookie[:])
	// option code 12 claims length 10 but only 1 byte follows
	data[HeaderSize+4] = OptHostname
	data[HeaderSize+5] = 10
	data[HeaderSize+6] = 'x'

	p, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, p.Options)
}

func TestSerializePadsToMinimumSize(t *testing.T) {
	p := New()
	wire := p.ToBytes()
	assert.GreaterOrEqual(t, len(wire), MinSerializedSize)
}

func TestOptionOrderingPreservedOnSet(t *testing.T) {
	p := New()
	p.SetMessageType(MessageTypeOffer)
	p.SetOption(OptServerIdentifier, to4(net.IPv4(192, 168, 1, 1)))
	p.SetLeaseTime(3600)

	require.Len(t, p.Options, 3)
	assert.Equal(t, OptMessageType, p.Options[0].Code)
	assert.Equal(t, OptServerIdentifier, p.Options[1].Code)
	assert.Equal(t, OptIPAddressLeaseTime, p.Options[2].Code)

	// Setting again updates in place, order unchanged.
	p.SetLeaseTime(7200)
	require.Len(t, p.Options, 3)
	assert.Equal(t, OptIPAddressLeaseTime, p.Options[2].Code)
	got, _ := p.LeaseTime()
	assert.EqualValues(t, 7200, got)
}

func TestAccessors(t *testing.T) {
	p := sampleDiscover()
	assert.Equal(t, MessageTypeDiscover, p.MessageType())
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}, p.ClientMAC())
	assert.True(t, p.IsBroadcast())
	assert.Equal(t, "my-laptop", p.Hostname())
	assert.True(t, p.IsOptionRequested(OptRouter))
	assert.False(t, p.IsOptionRequested(OptDomainName))
}
