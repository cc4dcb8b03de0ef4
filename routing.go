package warpcore

import "github.com/soypat/warpcore/wire"

// primaryAddrForFamily returns the engine's first configured address of the
// given family, used to pick a source address for an ARP/NDP query that
// isn't tied to any particular socket.
func (e *Engine) primaryAddrForFamily(af wire.Family) (wire.Addr, bool) {
	for _, a := range e.addrs {
		if a.Addr.Family() == af {
			return a.Addr, true
		}
	}
	return wire.Addr{}, false
}

// routeNeighbor decides which address to actually resolve a link-layer
// address for: dst itself if it falls within one of the engine's local
// prefixes, otherwise the configured next hop (if any), otherwise dst as
// a best-effort on-link guess. This is a single default gateway plus
// directly-connected interfaces, not a full longest-prefix-match table.
func (e *Engine) routeNeighbor(dst wire.Addr) wire.Addr {
	if e.onLink(dst) {
		return dst
	}
	if !e.nextHop.IsZero() && e.nextHop.Family() == dst.Family() {
		return e.nextHop
	}
	return dst
}

func (e *Engine) onLink(dst wire.Addr) bool {
	for _, a := range e.addrs {
		if a.Addr.Family() != dst.Family() {
			continue
		}
		if samePrefix(a.Addr, dst, a.PrefixLen) {
			return true
		}
	}
	return false
}

func samePrefix(a, b wire.Addr, prefixLen uint8) bool {
	if a.Family() != b.Family() || prefixLen == 0 {
		return false
	}
	if a.Is4() {
		ab, bb := a.As4(), b.As4()
		return matchPrefix(ab[:], bb[:], prefixLen)
	}
	ab, bb := a.As16(), b.As16()
	return matchPrefix(ab[:], bb[:], prefixLen)
}

func matchPrefix(a, b []byte, prefixLen uint8) bool {
	fullBytes := int(prefixLen) / 8
	remBits := prefixLen % 8
	if fullBytes > len(a) {
		return false
	}
	for i := 0; i < fullBytes; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	if remBits == 0 || fullBytes >= len(a) {
		return true
	}
	mask := byte(0xff) << (8 - remBits)
	return a[fullBytes]&mask == b[fullBytes]&mask
}
