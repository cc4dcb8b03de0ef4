package wire

import "encoding/binary"

// SizeEthernetHeader is the size in bytes of a non-VLAN Ethernet header.
const SizeEthernetHeader = 14

// EtherType identifies the payload protocol carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86dd
	EtherTypeVLAN EtherType = 0x8100
)

// EthernetHeader is the 14-byte Ethernet II header: dst (6), src (6), type
// (2). No VLAN tag support.
type EthernetHeader struct {
	Destination EthAddr // 0:6
	Source      EthAddr // 6:12
	Type        EtherType // 12:14
}

// DecodeEthernetHeader decodes an Ethernet header from the first 14 bytes of
// buf. buf must be at least SizeEthernetHeader bytes long or this panics.
func DecodeEthernetHeader(buf []byte) EthernetHeader {
	_ = buf[SizeEthernetHeader-1]
	var h EthernetHeader
	copy(h.Destination[:], buf[0:6])
	copy(h.Source[:], buf[6:12])
	h.Type = EtherType(binary.BigEndian.Uint16(buf[12:14]))
	return h
}

// Put marshals h onto the first 14 bytes of buf.
func (h *EthernetHeader) Put(buf []byte) {
	_ = buf[SizeEthernetHeader-1]
	copy(buf[0:6], h.Destination[:])
	copy(buf[6:12], h.Source[:])
	binary.BigEndian.PutUint16(buf[12:14], uint16(h.Type))
}
