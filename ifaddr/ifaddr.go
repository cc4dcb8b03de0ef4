// Package ifaddr discovers the MAC address, MTU, link state, and
// IPv4/IPv6 address set of a network interface: the information an engine
// needs at init time to populate its interface address table.
package ifaddr

import (
	"fmt"
	"net"

	"github.com/soypat/warpcore/wire"
)

// Info describes one network interface as warpcore's engine init needs it.
type Info struct {
	Name      string
	MAC       wire.EthAddr
	MTU       int
	Up        bool
	Loopback  bool
	Addrs     []wire.IfaceAddr
	Broadcast [4]byte // derived from the first IPv4 address, zero if none
}

// ErrNoSuchInterface is returned by Lookup if no interface with the given
// name exists.
type ErrNoSuchInterface string

func (e ErrNoSuchInterface) Error() string { return fmt.Sprintf("ifaddr: no such interface %q", string(e)) }

// Lookup gathers Info for the named interface using net.InterfaceByName()
// and net.Interface.Addrs(), a portable stand-in for a getifaddrs(3) walk.
func Lookup(name string) (Info, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return Info{}, ErrNoSuchInterface(name)
	}
	return fromInterface(ifi)
}

// All returns Info for every interface on the host, skipping ones whose
// address list cannot be read. An interface without a 6-byte hardware
// address is kept with a zero MAC.
func All() ([]Info, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(ifs))
	for i := range ifs {
		info, err := fromInterface(&ifs[i])
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func fromInterface(ifi *net.Interface) (Info, error) {
	info := Info{
		Name:     ifi.Name,
		MTU:      ifi.MTU,
		Up:       ifi.Flags&net.FlagUp != 0,
		Loopback: ifi.Flags&net.FlagLoopback != 0,
	}
	if len(ifi.HardwareAddr) == 6 {
		copy(info.MAC[:], ifi.HardwareAddr)
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return Info{}, err
	}
	var haveIPv4 bool
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ones, _ := ipnet.Mask.Size()
		ip4 := ipnet.IP.To4()
		if ip4 != nil {
			addr := wire.AddrFromIPv4Bytes([4]byte(ip4))
			derived := wire.AddrFromIPv4Bytes(wire.BroadcastIPv4([4]byte(ip4), uint8(ones)))
			info.Addrs = append(info.Addrs, wire.IfaceAddr{Addr: addr, PrefixLen: uint8(ones), Derived: derived})
			if !haveIPv4 {
				var mask [4]byte
				copy(mask[:], ipnet.Mask)
				var bcast [4]byte
				for i := range bcast {
					bcast[i] = ip4[i] | ^mask[i]
				}
				info.Broadcast = bcast
				haveIPv4 = true
			}
			continue
		}
		ip6 := ipnet.IP.To16()
		if ip6 != nil {
			var a16 [16]byte
			copy(a16[:], ip6)
			addr := wire.AddrFromIPv6(a16)
			info.Addrs = append(info.Addrs, wire.IfaceAddr{Addr: addr, PrefixLen: uint8(ones), Derived: wire.SolicitedNodeMulticast(addr)})
		}
	}
	return info, nil
}

// IPv4 returns the interface's first configured IPv4 address, if any.
func (i Info) IPv4() (wire.Addr, bool) {
	for _, a := range i.Addrs {
		if a.Addr.Is4() {
			return a.Addr, true
		}
	}
	return wire.Addr{}, false
}

// IPv6LinkLocal returns the interface's first link-local IPv6 address, if
// any — the address NDP neighbor solicitations should be sourced from.
func (i Info) IPv6LinkLocal() (wire.Addr, bool) {
	for _, a := range i.Addrs {
		if a.Addr.Is6() {
			a16 := a.Addr.As16()
			if a16[0] == 0xfe && a16[1]&0xc0 == 0x80 {
				return a.Addr, true
			}
		}
	}
	return wire.Addr{}, false
}
