package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPv6RoundTrip(t *testing.T) {
	h := IPv6Header{
		TrafficClass: NewDSCPECN(0, ECNECT0),
		FlowLabel:    0x12345,
		PayloadLen:   8,
		NextHeader:   ProtoUDP,
		HopLimit:     64,
		Source:       [16]byte{0xfe, 0x80, 15: 1},
		Destination:  [16]byte{0xfe, 0x80, 15: 2},
	}
	var buf [SizeIPv6Header]byte
	h.Put(buf[:])
	got := DecodeIPv6Header(buf[:])
	require.Equal(t, h, got)
}

func TestSolicitedNodeMulticast(t *testing.T) {
	target := AddrFromIPv6([16]byte{0xfe, 0x80, 15: 0x02})
	snma := SolicitedNodeMulticast(target)
	require.Equal(t, "ff02::1:ff00:2", snma.String())
	mac := SolicitedNodeMulticastMAC(snma)
	require.Equal(t, EthAddr{0x33, 0x33, 0xff, 0x00, 0x00, 0x02}, mac)
}

func TestIPv6ValidateVersion(t *testing.T) {
	var buf [SizeIPv6Header]byte
	buf[0] = 0x40 // version 4
	_, err := ValidateIPv6(buf[:], func([16]byte) bool { return true })
	require.ErrorIs(t, err, ErrIPv6BadVersion)
}
