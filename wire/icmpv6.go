package wire

import "encoding/binary"

// ICMPv6 types and codes used by warpcore, per RFC 4443 and RFC 4861.
const (
	ICMPv6DestUnreach       uint8 = 1
	ICMPv6EchoRequest       uint8 = 128
	ICMPv6EchoReply         uint8 = 129
	ICMPv6NeighborSolicit   uint8 = 135
	ICMPv6NeighborAdvert    uint8 = 136

	ICMPv6CodePortUnreach uint8 = 4
)

// NDP option types, per RFC 4861 §4.6.
const (
	NDPOptSourceLinkAddr uint8 = 1
	NDPOptTargetLinkAddr uint8 = 2
)

// NDP Neighbor Advertisement flag bits, high byte of the reserved/flags
// word following the ICMP header.
const (
	NDPFlagRouter    uint8 = 0x80
	NDPFlagSolicited uint8 = 0x40
	NDPFlagOverride  uint8 = 0x20
)

// SizeNDPLinkAddrOpt is the size of a source/target-link-layer-address
// option carrying a 6-byte Ethernet address: 1 byte type, 1 byte length (in
// units of 8 octets), 6 bytes address.
const SizeNDPLinkAddrOpt = 8

// FinishICMPv6Checksum computes and writes the ICMPv6 checksum, which is
// taken over the IPv6 pseudo-header plus the ICMPv6 message, per RFC 4443
// §2.3.
func FinishICMPv6Checksum(buf []byte, src, dst [16]byte) {
	binary.BigEndian.PutUint16(buf[2:4], 0)
	var c Checksum
	pseudoHeaderV6(&c, src, dst, ProtoICMPv6, uint32(len(buf)))
	_, _ = c.Write(buf)
	binary.BigEndian.PutUint16(buf[2:4], c.Sum())
}

// VerifyICMPv6Checksum reports whether buf's ICMPv6 checksum is valid.
func VerifyICMPv6Checksum(buf []byte, src, dst [16]byte) bool {
	var c Checksum
	pseudoHeaderV6(&c, src, dst, ProtoICMPv6, uint32(len(buf)))
	_, _ = c.Write(buf)
	return c.Sum() == 0
}

// BuildICMPv6EchoReply mirrors BuildICMPv4EchoReply for ICMPv6.
func BuildICMPv6EchoReply(out []byte, req ICMPHeader, payload []byte, src, dst [16]byte) int {
	h := ICMPHeader{Type: ICMPv6EchoReply, Code: 0, ID: req.ID, Seq: req.Seq}
	h.Put(out)
	n := copy(out[SizeICMPHeader:], payload)
	FinishICMPv6Checksum(out[:SizeICMPHeader+n], src, dst)
	return SizeICMPHeader + n
}

// BuildICMPv6Unreach mirrors BuildICMPv4Unreach for ICMPv6; RFC 4443 asks
// for as much of the offending packet as fits without exceeding the minimum
// IPv6 MTU, but warpcore simply embeds what the caller provides.
func BuildICMPv6Unreach(out []byte, code uint8, offending []byte, src, dst [16]byte) int {
	h := ICMPHeader{Type: ICMPv6DestUnreach, Code: code}
	h.Put(out)
	binary.BigEndian.PutUint32(out[SizeICMPHeader:SizeICMPHeader+4], 0)
	n := copy(out[SizeICMPHeader+4:], offending)
	total := SizeICMPHeader + 4 + n
	FinishICMPv6Checksum(out[:total], src, dst)
	return total
}

// BuildNeighborSolicitation builds an ICMPv6 Neighbor Solicitation for
// target, including a source-link-layer-address option carrying srcMAC, per
// RFC 4861 §4.3.
func BuildNeighborSolicitation(out []byte, target [16]byte, srcMAC EthAddr, src, dst [16]byte) int {
	h := ICMPHeader{Type: ICMPv6NeighborSolicit, Code: 0}
	h.Put(out)
	binary.BigEndian.PutUint32(out[SizeICMPHeader:SizeICMPHeader+4], 0) // reserved
	off := SizeICMPHeader + 4
	copy(out[off:off+16], target[:])
	off += 16
	out[off] = NDPOptSourceLinkAddr
	out[off+1] = 1 // length in units of 8 octets
	copy(out[off+2:off+8], srcMAC[:])
	off += SizeNDPLinkAddrOpt
	FinishICMPv6Checksum(out[:off], src, dst)
	return off
}

// BuildNeighborAdvertisement builds a solicited+override Neighbor
// Advertisement answering a solicitation for target, with a
// target-link-layer-address option carrying ourMAC, per RFC 4861 §4.4.
func BuildNeighborAdvertisement(out []byte, target [16]byte, ourMAC EthAddr, src, dst [16]byte) int {
	h := ICMPHeader{Type: ICMPv6NeighborAdvert, Code: 0}
	h.Put(out)
	flags := NDPFlagSolicited | NDPFlagOverride
	binary.BigEndian.PutUint32(out[SizeICMPHeader:SizeICMPHeader+4], uint32(flags)<<24)
	off := SizeICMPHeader + 4
	copy(out[off:off+16], target[:])
	off += 16
	out[off] = NDPOptTargetLinkAddr
	out[off+1] = 1
	copy(out[off+2:off+8], ourMAC[:])
	off += SizeNDPLinkAddrOpt
	FinishICMPv6Checksum(out[:off], src, dst)
	return off
}

// ParseNDPLinkAddrOpt scans the options trailing a Neighbor
// Solicitation/Advertisement's fixed 20-byte body (4 reserved/flags + 16
// target) for a link-layer-address option of the given type, returning its
// 6-byte Ethernet address and whether one was found.
func ParseNDPLinkAddrOpt(body []byte, wantType uint8) (EthAddr, bool) {
	const fixed = 20
	if len(body) <= fixed {
		return EthAddr{}, false
	}
	opts := body[fixed:]
	for len(opts) >= 2 {
		optType := opts[0]
		optLen8 := opts[1]
		if optLen8 == 0 {
			return EthAddr{}, false
		}
		optLen := int(optLen8) * 8
		if optLen > len(opts) {
			return EthAddr{}, false
		}
		if optType == wantType && optLen >= SizeNDPLinkAddrOpt {
			var mac EthAddr
			copy(mac[:], opts[2:8])
			return mac, true
		}
		opts = opts[optLen:]
	}
	return EthAddr{}, false
}

// NeighborSolicitationTarget reads the 16-byte target address out of a
// Neighbor Solicitation/Advertisement body (the 4 reserved/flags bytes
// followed by the target).
func NeighborSolicitationTarget(body []byte) (target [16]byte) {
	copy(target[:], body[4:20])
	return target
}
