package wire

import "encoding/binary"

// SizeUDPHeader is the fixed 8-byte UDP header: source port, destination
// port, length, checksum.
const SizeUDPHeader = 8

// UDPHeader is the 8-byte UDP header.
type UDPHeader struct {
	SourcePort uint16
	DestPort   uint16
	Length     uint16
	Checksum   uint16
}

func DecodeUDPHeader(buf []byte) UDPHeader {
	_ = buf[SizeUDPHeader-1]
	return UDPHeader{
		SourcePort: binary.BigEndian.Uint16(buf[0:2]),
		DestPort:   binary.BigEndian.Uint16(buf[2:4]),
		Length:     binary.BigEndian.Uint16(buf[4:6]),
		Checksum:   binary.BigEndian.Uint16(buf[6:8]),
	}
}

func (h *UDPHeader) Put(buf []byte) {
	_ = buf[SizeUDPHeader-1]
	binary.BigEndian.PutUint16(buf[0:2], h.SourcePort)
	binary.BigEndian.PutUint16(buf[2:4], h.DestPort)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
}

// FinishUDPChecksumV4 computes and writes the UDP checksum over the IPv4
// pseudo-header, UDP header and payload into udpBuf[6:8]. udpBuf is the UDP
// header followed by its payload (Length bytes total).
func FinishUDPChecksumV4(udpBuf []byte, src, dst [4]byte) {
	binary.BigEndian.PutUint16(udpBuf[6:8], 0)
	var c Checksum
	pseudoHeaderV4(&c, src, dst, ProtoUDP, uint16(len(udpBuf)))
	_, _ = c.Write(udpBuf)
	sum := c.Sum()
	if sum == 0 {
		// RFC 768: a computed checksum of zero is transmitted as all-ones.
		sum = 0xffff
	}
	binary.BigEndian.PutUint16(udpBuf[6:8], sum)
}

// FinishUDPChecksumV6 mirrors FinishUDPChecksumV4 for the IPv6
// pseudo-header.
func FinishUDPChecksumV6(udpBuf []byte, src, dst [16]byte) {
	binary.BigEndian.PutUint16(udpBuf[6:8], 0)
	var c Checksum
	pseudoHeaderV6(&c, src, dst, ProtoUDP, uint32(len(udpBuf)))
	_, _ = c.Write(udpBuf)
	sum := c.Sum()
	if sum == 0 {
		sum = 0xffff
	}
	binary.BigEndian.PutUint16(udpBuf[6:8], sum)
}

// VerifyUDPChecksumV4 verifies udpBuf's checksum over the IPv4
// pseudo-header. RFC 768 allows a zero checksum field to mean "not
// computed"; callers should skip calling this when h.Checksum == 0.
func VerifyUDPChecksumV4(udpBuf []byte, src, dst [4]byte) bool {
	var c Checksum
	pseudoHeaderV4(&c, src, dst, ProtoUDP, uint16(len(udpBuf)))
	_, _ = c.Write(udpBuf)
	return c.Sum() == 0
}

// VerifyUDPChecksumV6 mirrors VerifyUDPChecksumV4 for IPv6.
func VerifyUDPChecksumV6(udpBuf []byte, src, dst [16]byte) bool {
	var c Checksum
	pseudoHeaderV6(&c, src, dst, ProtoUDP, uint32(len(udpBuf)))
	_, _ = c.Write(udpBuf)
	return c.Sum() == 0
}
