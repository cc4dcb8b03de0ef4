package wire

import "encoding/binary"

// SizeICMPHeader is the fixed 8-byte shape shared by ICMPv4 and ICMPv6.
const SizeICMPHeader = 8

// ICMPv4 types and codes used by warpcore, per RFC 792.
const (
	ICMPv4EchoReply       uint8 = 0
	ICMPv4DestUnreach     uint8 = 3
	ICMPv4EchoRequest     uint8 = 8

	ICMPv4CodeProtoUnreach uint8 = 2
	ICMPv4CodePortUnreach  uint8 = 3
)

// ICMPHeader is the 8-byte ICMP header shape (type, code, checksum, id,
// seq) common to ICMPv4 and ICMPv6 Echo/error messages.
type ICMPHeader struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16
}

func DecodeICMPHeader(buf []byte) ICMPHeader {
	_ = buf[SizeICMPHeader-1]
	return ICMPHeader{
		Type:     buf[0],
		Code:     buf[1],
		Checksum: binary.BigEndian.Uint16(buf[2:4]),
		ID:       binary.BigEndian.Uint16(buf[4:6]),
		Seq:      binary.BigEndian.Uint16(buf[6:8]),
	}
}

func (h *ICMPHeader) Put(buf []byte) {
	_ = buf[SizeICMPHeader-1]
	buf[0] = h.Type
	buf[1] = h.Code
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], h.Seq)
}

// FinishICMPv4Checksum computes and writes the ICMPv4 checksum (plain
// Internet checksum over the ICMP message, no pseudo-header) into buf[2:4].
func FinishICMPv4Checksum(buf []byte) {
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint16(buf[2:4], InternetChecksum(buf))
}

// VerifyICMPv4Checksum reports whether buf's ICMPv4 checksum is valid.
func VerifyICMPv4Checksum(buf []byte) bool {
	return InternetChecksum(buf) == 0
}

// BuildICMPv4EchoReply constructs an Echo Reply that copies id, seq and
// payload from an Echo Request.
func BuildICMPv4EchoReply(out []byte, req ICMPHeader, payload []byte) int {
	h := ICMPHeader{Type: ICMPv4EchoReply, Code: 0, ID: req.ID, Seq: req.Seq}
	h.Put(out)
	n := copy(out[SizeICMPHeader:], payload)
	FinishICMPv4Checksum(out[:SizeICMPHeader+n])
	return SizeICMPHeader + n
}

// BuildICMPv4Unreach constructs a Destination Unreachable message with the
// given code, embedding the offending IPv4 packet (header + first 8 bytes of
// its payload, i.e. enough to include the UDP ports) as RFC 792 requires.
func BuildICMPv4Unreach(out []byte, code uint8, offending []byte) int {
	h := ICMPHeader{Type: ICMPv4DestUnreach, Code: code}
	h.Put(out)
	// 4 bytes unused (RFC 792 "unused" field) follow the common header.
	binary.BigEndian.PutUint32(out[SizeICMPHeader:SizeICMPHeader+4], 0)
	n := copy(out[SizeICMPHeader+4:], offending)
	total := SizeICMPHeader + 4 + n
	FinishICMPv4Checksum(out[:total])
	return total
}
