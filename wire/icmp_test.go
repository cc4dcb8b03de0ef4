package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestICMPv4EchoRoundTrip(t *testing.T) {
	reqBuf := make([]byte, SizeICMPHeader+4)
	req := ICMPHeader{Type: ICMPv4EchoRequest, ID: 7, Seq: 1}
	req.Put(reqBuf)
	copy(reqBuf[SizeICMPHeader:], []byte("ping"))
	FinishICMPv4Checksum(reqBuf)
	require.True(t, VerifyICMPv4Checksum(reqBuf))

	decoded := DecodeICMPHeader(reqBuf)
	replyBuf := make([]byte, SizeICMPHeader+4)
	n := BuildICMPv4EchoReply(replyBuf, decoded, reqBuf[SizeICMPHeader:])
	require.Equal(t, len(replyBuf), n)
	require.True(t, VerifyICMPv4Checksum(replyBuf))

	reply := DecodeICMPHeader(replyBuf)
	require.Equal(t, ICMPv4EchoReply, reply.Type)
	require.Equal(t, req.ID, reply.ID)
	require.Equal(t, req.Seq, reply.Seq)
	require.Equal(t, "ping", string(replyBuf[SizeICMPHeader:]))
}

func TestICMPv4UnreachEmbedsOffending(t *testing.T) {
	offending := make([]byte, SizeIPv4Header+8)
	out := make([]byte, len(offending)+SizeICMPHeader+4)
	n := BuildICMPv4Unreach(out, ICMPv4CodePortUnreach, offending)
	require.Equal(t, len(out), n)
	require.True(t, VerifyICMPv4Checksum(out))
	require.Equal(t, ICMPv4CodePortUnreach, DecodeICMPHeader(out).Code)
}

func TestICMPv6NeighborSolicitationRoundTrip(t *testing.T) {
	srcMAC := EthAddr{0x02, 0, 0, 0, 0, 1}
	target := [16]byte{0xfe, 0x80, 15: 2}
	src := [16]byte{0xfe, 0x80, 15: 1}
	snma := SolicitedNodeMulticast(AddrFromIPv6(target)).As16()

	buf := make([]byte, SizeICMPHeader+20+SizeNDPLinkAddrOpt)
	n := BuildNeighborSolicitation(buf, target, srcMAC, src, snma)
	require.Equal(t, len(buf), n)
	require.True(t, VerifyICMPv6Checksum(buf, src, snma))

	h := DecodeICMPHeader(buf)
	require.Equal(t, ICMPv6NeighborSolicit, h.Type)
	gotTarget := NeighborSolicitationTarget(buf[SizeICMPHeader:])
	require.Equal(t, target, gotTarget)

	mac, ok := ParseNDPLinkAddrOpt(buf[SizeICMPHeader:], NDPOptSourceLinkAddr)
	require.True(t, ok)
	require.Equal(t, srcMAC, mac)
}

func TestICMPv6NeighborAdvertisementRoundTrip(t *testing.T) {
	ourMAC := EthAddr{0x02, 0, 0, 0, 0, 2}
	target := [16]byte{0xfe, 0x80, 15: 2}
	src := target
	dst := [16]byte{0xfe, 0x80, 15: 1}

	buf := make([]byte, SizeICMPHeader+20+SizeNDPLinkAddrOpt)
	BuildNeighborAdvertisement(buf, target, ourMAC, src, dst)
	require.True(t, VerifyICMPv6Checksum(buf, src, dst))

	mac, ok := ParseNDPLinkAddrOpt(buf[SizeICMPHeader:], NDPOptTargetLinkAddr)
	require.True(t, ok)
	require.Equal(t, ourMAC, mac)
}
