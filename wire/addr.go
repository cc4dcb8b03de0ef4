// Package wire implements bit-exact encoding and decoding of the Ethernet,
// ARP, IPv4, IPv6, ICMPv4, ICMPv6 and UDP frame formats used by warpcore,
// plus the Internet checksum and the address/four-tuple types shared by the
// rest of the engine.
//
// Header types mirror their wire layout field-for-field (see the byte-offset
// comments on each struct) and are marshaled with explicit
// encoding/binary.BigEndian calls rather than pointer casts, so decoding
// tolerates the unaligned buffers the RX path hands it straight out of ring
// memory.
package wire

import (
	"fmt"
	"net"
	"net/netip"
)

// Family identifies the IP address family of an address, vector or socket.
type Family uint8

const (
	FamilyNone Family = 0
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "none"
	}
}

// Addr is the tagged IP address variant from the data model: either a 4-byte
// IPv4 address or a 16-byte IPv6 address, distinguished by Family.
type Addr struct {
	fam  Family
	data [16]byte
}

// AddrFromIPv4 builds an Addr from its four octets.
func AddrFromIPv4(a, b, c, d byte) Addr {
	var w Addr
	w.fam = FamilyIPv4
	w.data[0], w.data[1], w.data[2], w.data[3] = a, b, c, d
	return w
}

// AddrFromIPv4Bytes builds an Addr from four octets passed as an array,
// convenient when the caller already has a [4]byte (e.g. from net.IP.To4()).
func AddrFromIPv4Bytes(b [4]byte) Addr {
	return AddrFromIPv4(b[0], b[1], b[2], b[3])
}

// AddrFromIPv6 builds an Addr from 16 octets.
func AddrFromIPv6(b [16]byte) Addr {
	return Addr{fam: FamilyIPv6, data: b}
}

// AddrFromNetip converts a netip.Addr into the engine's tagged Addr.
func AddrFromNetip(a netip.Addr) Addr {
	a = a.Unmap()
	if a.Is4() {
		b := a.As4()
		return AddrFromIPv4(b[0], b[1], b[2], b[3])
	}
	return AddrFromIPv6(a.As16())
}

// Netip converts the Addr back to the standard library's netip.Addr.
func (a Addr) Netip() netip.Addr {
	if a.fam == FamilyIPv4 {
		return netip.AddrFrom4([4]byte{a.data[0], a.data[1], a.data[2], a.data[3]})
	}
	return netip.AddrFrom16(a.data)
}

// Family returns the address family tag.
func (a Addr) Family() Family { return a.fam }

// Is4 reports whether a is an IPv4 address.
func (a Addr) Is4() bool { return a.fam == FamilyIPv4 }

// Is6 reports whether a is an IPv6 address.
func (a Addr) Is6() bool { return a.fam == FamilyIPv6 }

// IsZero reports whether a carries no family tag (the all-zero sentinel used
// by a bound-only four-tuple's remote side).
func (a Addr) IsZero() bool { return a.fam == FamilyNone }

// As4 returns the four octets of an IPv4 address. Only valid when Is4().
func (a Addr) As4() [4]byte { return [4]byte{a.data[0], a.data[1], a.data[2], a.data[3]} }

// As16 returns the sixteen octets of an IPv6 address. Only valid when Is6().
func (a Addr) As16() [16]byte { return a.data }

// String renders the address in its usual textual form.
func (a Addr) String() string {
	switch a.fam {
	case FamilyIPv4:
		return fmt.Sprintf("%d.%d.%d.%d", a.data[0], a.data[1], a.data[2], a.data[3])
	case FamilyIPv6:
		return net.IP(a.data[:]).String()
	default:
		return "<none>"
	}
}

// IfaceAddr is an interface address: an Addr plus its prefix length and the
// derived broadcast (IPv4) or solicited-node multicast (IPv6) address, and
// an IPv6 scope id (zero for IPv4).
type IfaceAddr struct {
	Addr      Addr
	PrefixLen uint8
	Derived   Addr // directed broadcast (v4) or solicited-node multicast (v6)
	Scope     uint32
}

// SolicitedNodeMulticast builds the IPv6 solicited-node multicast address
// ff02::1:ff00:0/104 | (low 24 bits of target), per RFC 4861.
func SolicitedNodeMulticast(target Addr) Addr {
	b := target.As16()
	var m [16]byte
	copy(m[:13], []byte{0xff, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0xff})
	m[13], m[14], m[15] = b[13], b[14], b[15]
	return AddrFromIPv6(m)
}

// SolicitedNodeMulticastMAC derives the Ethernet multicast MAC corresponding
// to a solicited-node multicast address: 33:33:ff:xx:xx:xx.
func SolicitedNodeMulticastMAC(snma Addr) EthAddr {
	b := snma.As16()
	return EthAddr{0x33, 0x33, 0xff, b[13], b[14], b[15]}
}

// EthAddr is a 6-byte Ethernet hardware address.
type EthAddr [6]byte

var (
	// EthBroadcast is the all-ones Ethernet broadcast address.
	EthBroadcast = EthAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	// EthUnresolved is the sentinel neighbor-table value meaning
	// "unresolved / query in progress".
	EthUnresolved = EthBroadcast
	// EthZero is the all-zero Ethernet address.
	EthZero = EthAddr{}
)

func (e EthAddr) String() string { return net.HardwareAddr(e[:]).String() }

// IsMulticast reports whether e is an IPv4 or IPv6 multicast MAC, i.e. the
// low bit of its first octet is set.
func (e EthAddr) IsMulticast() bool { return e[0]&0x01 != 0 }

// SockAddr is (IP address, port, optional IPv6 scope id) from the data
// model.
type SockAddr struct {
	IP   Addr
	Port uint16
	Zone uint32
}

func (s SockAddr) String() string {
	if s.IP.Is6() {
		return fmt.Sprintf("[%s]:%d", s.IP, s.Port)
	}
	return fmt.Sprintf("%s:%d", s.IP, s.Port)
}

// IsZero reports whether both the address and port are zero, i.e. this is
// the "no remote" sentinel used by a bound-only socket.
func (s SockAddr) IsZero() bool { return s.IP.IsZero() && s.Port == 0 }

// FourTuple is the socket demultiplexer key: (local, remote). The remote
// side is all-zero for a bound-only socket.
type FourTuple struct {
	Local  SockAddr
	Remote SockAddr
}

// BoundOnly returns the four-tuple with the Remote side cleared, used for
// the fallback lookup in a two-step socket dispatch.
func (t FourTuple) BoundOnly() FourTuple {
	return FourTuple{Local: t.Local}
}

// FourTuple, SockAddr and Addr are all comparable structs (no slices or
// pointers), so a plain Go map[FourTuple]* serves as the demultiplexer's
// hash table — Go's map hashes and resolves collisions over the full
// value internally, with no need for a hand-rolled table keyed by tuple.
