package wire

import (
	"encoding/binary"
	"errors"
)

// SizeARPv4Header is the fixed size of an ARP header for IPv4-over-Ethernet.
const SizeARPv4Header = 28

// ARP hardware/protocol format constants and opcodes, per RFC 826.
const (
	ARPHardwareEthernet uint16 = 1
	ARPProtoIPv4        uint16 = uint16(EtherTypeIPv4)

	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// ErrBadARPFormat is returned by DecodeARPv4Header when the frame is not
// Ethernet-over-IPv4 ARP.
var ErrBadARPFormat = errors.New("wire: arp: unsupported hardware/protocol format")

// ARPv4Header is the 28-byte ARP header for 6-byte hardware addresses and
// IPv4 protocol addresses.
type ARPv4Header struct {
	HardwareType   uint16  // 0:2
	ProtoType      uint16  // 2:4
	HardwareLength uint8   // 4:5
	ProtoLength    uint8   // 5:6
	Operation      uint16  // 6:8
	SenderHardware EthAddr // 8:14
	SenderProto    [4]byte // 14:18
	TargetHardware EthAddr // 18:24
	TargetProto    [4]byte // 24:28
}

// DecodeARPv4Header decodes the first 28 bytes of buf as an ARP header. It
// rejects frames whose hardware format is not Ethernet or whose protocol
// format is not IPv4,
func DecodeARPv4Header(buf []byte) (ARPv4Header, error) {
	_ = buf[SizeARPv4Header-1]
	var h ARPv4Header
	h.HardwareType = binary.BigEndian.Uint16(buf[0:2])
	h.ProtoType = binary.BigEndian.Uint16(buf[2:4])
	h.HardwareLength = buf[4]
	h.ProtoLength = buf[5]
	if h.HardwareType != ARPHardwareEthernet || h.ProtoType != ARPProtoIPv4 ||
		h.HardwareLength != 6 || h.ProtoLength != 4 {
		return ARPv4Header{}, ErrBadARPFormat
	}
	h.Operation = binary.BigEndian.Uint16(buf[6:8])
	copy(h.SenderHardware[:], buf[8:14])
	copy(h.SenderProto[:], buf[14:18])
	copy(h.TargetHardware[:], buf[18:24])
	copy(h.TargetProto[:], buf[24:28])
	return h, nil
}

// Put marshals h onto the first 28 bytes of buf.
func (h *ARPv4Header) Put(buf []byte) {
	_ = buf[SizeARPv4Header-1]
	binary.BigEndian.PutUint16(buf[0:2], h.HardwareType)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtoType)
	buf[4] = h.HardwareLength
	buf[5] = h.ProtoLength
	binary.BigEndian.PutUint16(buf[6:8], h.Operation)
	copy(buf[8:14], h.SenderHardware[:])
	copy(buf[14:18], h.SenderProto[:])
	copy(buf[18:24], h.TargetHardware[:])
	copy(buf[24:28], h.TargetProto[:])
}

// NewARPRequest builds a "who-has" ARP request header: senderMAC/senderIP
// are this engine's identity, targetIP is the address being resolved.
func NewARPRequest(senderMAC EthAddr, senderIP [4]byte, targetIP [4]byte) ARPv4Header {
	return ARPv4Header{
		HardwareType:   ARPHardwareEthernet,
		ProtoType:      ARPProtoIPv4,
		HardwareLength: 6,
		ProtoLength:    4,
		Operation:      ARPOpRequest,
		SenderHardware: senderMAC,
		SenderProto:    senderIP,
		TargetHardware: EthAddr{},
		TargetProto:    targetIP,
	}
}

// NewARPReply builds a reply to req, answering that ourMAC owns ourIP.
func NewARPReply(req ARPv4Header, ourMAC EthAddr, ourIP [4]byte) ARPv4Header {
	return ARPv4Header{
		HardwareType:   ARPHardwareEthernet,
		ProtoType:      ARPProtoIPv4,
		HardwareLength: 6,
		ProtoLength:    4,
		Operation:      ARPOpReply,
		SenderHardware: ourMAC,
		SenderProto:    ourIP,
		TargetHardware: req.SenderHardware,
		TargetProto:    req.SenderProto,
	}
}
