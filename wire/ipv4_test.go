package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPv4RoundTrip(t *testing.T) {
	h := IPv4Header{
		TOS:         NewDSCPECN(0, ECNECT0),
		TotalLength: SizeIPv4Header + 8,
		ID:          0x1234,
		Flags:       ipv4FlagDF,
		TTL:         64,
		Protocol:    ProtoUDP,
		Source:      [4]byte{10, 0, 0, 1},
		Destination: [4]byte{10, 0, 0, 2},
	}
	var buf [SizeIPv4Header]byte
	h.Put(buf[:])
	require.Zero(t, InternetChecksum(buf[:]))

	got := DecodeIPv4Header(buf[:])
	got.Checksum = 0 // computed by Put, not part of the logical comparison
	want := h
	want.Checksum = 0
	require.Equal(t, want, got)
}

func TestIPv4ValidateRejectsBadChecksum(t *testing.T) {
	h := IPv4Header{TotalLength: SizeIPv4Header, TTL: 64, Protocol: ProtoUDP}
	var buf [SizeIPv4Header]byte
	h.Put(buf[:])
	buf[11] ^= 0xff // corrupt checksum

	_, err := ValidateIPv4(buf[:], func([4]byte) bool { return true })
	require.ErrorIs(t, err, ErrIPv4BadChecksum)
}

func TestIPv4ValidateRejectsFragment(t *testing.T) {
	h := IPv4Header{TotalLength: SizeIPv4Header, TTL: 64, Protocol: ProtoUDP, Flags: 0x0020}
	var buf [SizeIPv4Header]byte
	h.Put(buf[:])

	_, err := ValidateIPv4(buf[:], func([4]byte) bool { return true })
	require.ErrorIs(t, err, ErrIPv4Fragment)
}

func TestIPv4ValidateChecksDestination(t *testing.T) {
	h := IPv4Header{TotalLength: SizeIPv4Header, TTL: 64, Protocol: ProtoUDP, Destination: [4]byte{10, 0, 0, 9}}
	var buf [SizeIPv4Header]byte
	h.Put(buf[:])

	_, err := ValidateIPv4(buf[:], func([4]byte) bool { return false })
	require.ErrorIs(t, err, ErrIPv4NotForUs)
}

func TestBroadcastIPv4(t *testing.T) {
	got := BroadcastIPv4([4]byte{192, 168, 1, 5}, 24)
	require.Equal(t, [4]byte{192, 168, 1, 255}, got)
	require.Equal(t, [4]byte{255, 255, 255, 255}, LimitedBroadcastIPv4())
}
