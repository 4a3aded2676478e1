package dhcp6wire

import (
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSolicit() *Packet {
	p := &Packet{Type: MessageTypeSolicit, TransactionID: [3]byte{0x01, 0x02, 0x03}}
	p.SetOption(OptClientID, []byte{0x00, 0x01, 0x00, 0x01, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01})
	p.SetOption(OptOptionRequest, []byte{0x00, OptDNSServers, 0x00, OptIAPD})
	iana := BuildIANA(1, 3600*time.Second, 5400*time.Second, net.ParseIP("2001:db8::10"), 3000*time.Second, 5000*time.Second)
	p.Options = append(p.Options, iana)
	return p
}

// Property 5 equivalent for DHCPv6: parse(serialize(parse(p))) == parse(p).
func TestRoundTrip(t *testing.T) {
	p1 := sampleSolicit()
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

// Unlike DHCPv4 (where a truncated option silently ends parsing), a
// truncated DHCPv6 option is a hard error.
func TestParseTruncatedOptionIsError(t *testing.T) {
	data := make([]byte, HeaderSize+4+1)
	data[0] = byte(MessageTypeSolicit)
	// option code OptClientID claims length 10 but only 1 byte follows
	data[HeaderSize+1] = byte(OptClientID)
	data[HeaderSize+3] = 10

	_, err := Parse(data)
	require.Error(t, err)
	var shortErr *ErrMalformedShort
	require.ErrorAs(t, err, &shortErr)
}

func TestParseTruncatedHeaderWithinOptionStreamIsError(t *testing.T) {
	data := make([]byte, HeaderSize+3)
	data[0] = byte(MessageTypeSolicit)

	_, err := Parse(data)
	require.Error(t, err)
}

func TestIANARoundTrip(t *testing.T) {
	addr := net.ParseIP("2001:db8::42")
	opt := BuildIANA(7, time.Hour, 90*time.Minute, addr, 45*time.Minute, time.Hour)
	ia, ok := ParseIANA(opt.Data)
	require.True(t, ok)
	assert.EqualValues(t, 7, ia.IAID)
	assert.Equal(t, time.Hour, ia.T1)
	assert.Equal(t, 90*time.Minute, ia.T2)
	assert.True(t, addr.Equal(ia.Addr))
	assert.Equal(t, 45*time.Minute, ia.PreferredLifetime)
	assert.Equal(t, time.Hour, ia.ValidLifetime)
}

func TestIAPDRoundTrip(t *testing.T) {
	prefix := net.ParseIP("2001:db8:1::")
	payload := BuildIAPrefix(prefix, 56, 30*time.Minute, time.Hour)
	opt := BuildIAPD(9, 30*time.Minute, 48*time.Minute, [][]byte{payload})

	iapd, ok := ParseIAPD(opt.Data)
	require.True(t, ok)
	assert.EqualValues(t, 9, iapd.IAID)
	require.Len(t, iapd.Hints, 1)
	assert.Equal(t, 56, iapd.Hints[0].PrefixLength)
	assert.True(t, prefix.Equal(iapd.Hints[0].Prefix))
}

func TestAccessors(t *testing.T) {
	p := sampleSolicit()
	assert.Equal(t, MessageTypeSolicit, p.Type)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x01, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01}, p.ClientDUID())
	assert.True(t, p.IsOptionRequested(OptDNSServers))
	assert.True(t, p.IsOptionRequested(OptIAPD))
	assert.False(t, p.IsOptionRequested(OptDomainList))
}

func TestReplyEchoesTransactionID(t *testing.T) {
	req := sampleSolicit()
	reply := NewReplyFromRequest(req, MessageTypeAdvertise)
	assert.Equal(t, req.TransactionID, reply.TransactionID)
	assert.Equal(t, MessageTypeAdvertise, reply.Type)
}
