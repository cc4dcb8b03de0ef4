package wire

import "encoding/binary"

// SizeIPv4Header is the fixed size of an IPv4 header with no options.
const SizeIPv4Header = 20

// IP protocol numbers used by warpcore.
const (
	ProtoICMPv4 uint8 = 1
	ProtoUDP    uint8 = 17
	ProtoICMPv6 uint8 = 58
)

const (
	ipv4VersionIHL  = 0x45 // version 4, IHL 5 (20 bytes, no options)
	ipv4FlagDF      = 0x4000
	ipv4FlagMF      = 0x8000
	ipv4FragMask    = 0x1fff
	ipv4DefaultTTL  = 255
)

// IPv4FlagDF is the Don't Fragment bit of an IPv4 header's flags field. The
// bypass backend sets this on every outgoing datagram.
const IPv4FlagDF = IPv4Flags(ipv4FlagDF)

// IPv4DefaultTTL is the TTL the bypass backend stamps on every outgoing
// IPv4 datagram.
const IPv4DefaultTTL uint8 = ipv4DefaultTTL

// ECN is the two-bit ECN codepoint embedded in the DSCP+ECN byte.
type ECN uint8

const (
	ECNNotECT ECN = 0b00
	ECNECT1   ECN = 0b01
	ECNECT0   ECN = 0b10
	ECNCE     ECN = 0b11
)

// DSCPECN packs a DSCP value (6 bits) and an ECN codepoint (2 bits) into the
// single byte carried as TOS (IPv4) / traffic class (IPv6) and mirrored in
// a vector's Flags field.
type DSCPECN uint8

func NewDSCPECN(dscp uint8, ecn ECN) DSCPECN { return DSCPECN(dscp<<2 | uint8(ecn)&0b11) }
func (d DSCPECN) DSCP() uint8                { return uint8(d) >> 2 }
func (d DSCPECN) ECN() ECN                   { return ECN(uint8(d) & 0b11) }

// IPv4Flags is the combined flags+fragment-offset field.
type IPv4Flags uint16

func (f IPv4Flags) DontFragment() bool     { return f&ipv4FlagDF != 0 }
func (f IPv4Flags) MoreFragments() bool    { return f&ipv4FlagMF != 0 }
func (f IPv4Flags) FragmentOffset() uint16 { return uint16(f) & ipv4FragMask }

// IPv4Header is the 20-byte IPv4 header with no options support.
type IPv4Header struct {
	TOS         DSCPECN   // 1:2
	TotalLength uint16    // 2:4
	ID          uint16    // 4:6
	Flags       IPv4Flags // 6:8
	TTL         uint8     // 8:9
	Protocol    uint8     // 9:10
	Checksum    uint16    // 10:12
	Source      [4]byte   // 12:16
	Destination [4]byte   // 16:20
}

// DecodeIPv4Header decodes buf[0:20] without validating anything; callers
// use ValidateIPv4 to apply receive-side checks.
func DecodeIPv4Header(buf []byte) IPv4Header {
	_ = buf[SizeIPv4Header-1]
	var h IPv4Header
	h.TOS = DSCPECN(buf[1])
	h.TotalLength = binary.BigEndian.Uint16(buf[2:4])
	h.ID = binary.BigEndian.Uint16(buf[4:6])
	h.Flags = IPv4Flags(binary.BigEndian.Uint16(buf[6:8]))
	h.TTL = buf[8]
	h.Protocol = buf[9]
	h.Checksum = binary.BigEndian.Uint16(buf[10:12])
	copy(h.Source[:], buf[12:16])
	copy(h.Destination[:], buf[16:20])
	return h
}

// Put marshals h onto buf[0:20], computing and writing a fresh header
// checksum as the final step.
func (h *IPv4Header) Put(buf []byte) {
	_ = buf[SizeIPv4Header-1]
	buf[0] = ipv4VersionIHL
	buf[1] = byte(h.TOS)
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Flags))
	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], 0)
	copy(buf[12:16], h.Source[:])
	copy(buf[16:20], h.Destination[:])
	binary.BigEndian.PutUint16(buf[10:12], InternetChecksum(buf[0:SizeIPv4Header]))
}

// IPv4ValidateError enumerates the receive-side rejection reasons the
// IPv4 decoder applies.
type IPv4ValidateError string

func (e IPv4ValidateError) Error() string { return string(e) }

const (
	ErrIPv4BadVersion    IPv4ValidateError = "wire: ipv4: bad version"
	ErrIPv4BadIHL        IPv4ValidateError = "wire: ipv4: header length != 20 (options unsupported)"
	ErrIPv4BadChecksum   IPv4ValidateError = "wire: ipv4: bad header checksum"
	ErrIPv4NotForUs      IPv4ValidateError = "wire: ipv4: destination not local"
	ErrIPv4Fragment      IPv4ValidateError = "wire: ipv4: non-zero fragment offset"
	ErrIPv4BufferTooShort IPv4ValidateError = "wire: ipv4: buffer shorter than declared total length"
)

// ValidateIPv4 applies receive checks: version 4, IHL==20,
// zero header checksum, fragment offset zero, and destination membership
// (checked by the caller via isLocal, which should also accept directed and
// limited broadcast).
func ValidateIPv4(buf []byte, isLocal func(dst [4]byte) bool) (IPv4Header, error) {
	if len(buf) < SizeIPv4Header {
		return IPv4Header{}, ErrIPv4BufferTooShort
	}
	verIHL := buf[0]
	if verIHL>>4 != 4 {
		return IPv4Header{}, ErrIPv4BadVersion
	}
	if int(verIHL&0x0f)*4 != SizeIPv4Header {
		return IPv4Header{}, ErrIPv4BadIHL
	}
	if InternetChecksum(buf[0:SizeIPv4Header]) != 0 {
		return IPv4Header{}, ErrIPv4BadChecksum
	}
	h := DecodeIPv4Header(buf)
	if h.Flags.FragmentOffset() != 0 {
		return IPv4Header{}, ErrIPv4Fragment
	}
	if int(h.TotalLength) > len(buf) {
		return IPv4Header{}, ErrIPv4BufferTooShort
	}
	if isLocal != nil && !isLocal(h.Destination) {
		return IPv4Header{}, ErrIPv4NotForUs
	}
	return h, nil
}

// BroadcastIPv4 computes the directed broadcast address for an interface
// address/prefix pair, and LimitedBroadcastIPv4 returns 255.255.255.255.
func BroadcastIPv4(addr [4]byte, prefixLen uint8) [4]byte {
	var mask uint32 = 0
	if prefixLen > 0 {
		mask = ^uint32(0) << (32 - prefixLen)
	}
	a := binary.BigEndian.Uint32(addr[:])
	b := a | ^mask
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], b)
	return out
}

func LimitedBroadcastIPv4() [4]byte { return [4]byte{255, 255, 255, 255} }
