package wire

import "encoding/binary"

// SizeIPv6Header is the fixed size of an IPv6 header (no extension headers).
const SizeIPv6Header = 40

const ipv6DefaultHopLimit = 255

// IPv6DefaultHopLimit is the hop limit the bypass backend stamps on every
// outgoing IPv6 datagram and NDP message.
const IPv6DefaultHopLimit uint8 = ipv6DefaultHopLimit

// IPv6Header is the 40-byte fixed IPv6 header,
type IPv6Header struct {
	TrafficClass DSCPECN  // bits 4:12 of the version/class/flow word
	FlowLabel    uint32   // low 20 bits of the version/class/flow word
	PayloadLen   uint16   // 4:6
	NextHeader   uint8    // 6:7
	HopLimit     uint8    // 7:8
	Source       [16]byte // 8:24
	Destination  [16]byte // 24:40
}

// DecodeIPv6Header decodes buf[0:40].
func DecodeIPv6Header(buf []byte) IPv6Header {
	_ = buf[SizeIPv6Header-1]
	var h IPv6Header
	word := binary.BigEndian.Uint32(buf[0:4])
	h.TrafficClass = DSCPECN(word >> 20 & 0xff)
	h.FlowLabel = word & 0xfffff
	h.PayloadLen = binary.BigEndian.Uint16(buf[4:6])
	h.NextHeader = buf[6]
	h.HopLimit = buf[7]
	copy(h.Source[:], buf[8:24])
	copy(h.Destination[:], buf[24:40])
	return h
}

// Put marshals h onto buf[0:40]. IPv6 has no header checksum.
func (h *IPv6Header) Put(buf []byte) {
	_ = buf[SizeIPv6Header-1]
	word := uint32(6)<<28 | uint32(h.TrafficClass)<<20 | h.FlowLabel&0xfffff
	binary.BigEndian.PutUint32(buf[0:4], word)
	binary.BigEndian.PutUint16(buf[4:6], h.PayloadLen)
	buf[6] = h.NextHeader
	buf[7] = h.HopLimit
	copy(buf[8:24], h.Source[:])
	copy(buf[24:40], h.Destination[:])
}

// IPv6ValidateError enumerates IPv6 receive-side rejection reasons.
type IPv6ValidateError string

func (e IPv6ValidateError) Error() string { return string(e) }

const (
	ErrIPv6BadVersion     IPv6ValidateError = "wire: ipv6: bad version"
	ErrIPv6NotForUs       IPv6ValidateError = "wire: ipv6: destination not local"
	ErrIPv6BufferTooShort IPv6ValidateError = "wire: ipv6: buffer shorter than payload length"
)

// ValidateIPv6 applies receive checks: version 6 and destination
// membership (unicast, solicited-node multicast, or configured broadcast, as
// decided by isLocal).
func ValidateIPv6(buf []byte, isLocal func(dst [16]byte) bool) (IPv6Header, error) {
	if len(buf) < SizeIPv6Header {
		return IPv6Header{}, ErrIPv6BufferTooShort
	}
	if buf[0]>>4 != 6 {
		return IPv6Header{}, ErrIPv6BadVersion
	}
	h := DecodeIPv6Header(buf)
	if int(h.PayloadLen)+SizeIPv6Header > len(buf) {
		return IPv6Header{}, ErrIPv6BufferTooShort
	}
	if isLocal != nil && !isLocal(h.Destination) {
		return IPv6Header{}, ErrIPv6NotForUs
	}
	return h, nil
}
