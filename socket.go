package warpcore

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/backend/ossock"
	"github.com/soypat/warpcore/socktab"
	"github.com/soypat/warpcore/wire"
)

// SocketOptions configures a socket at Bind time. The zero value requests
// the bound address's family with UDP checksums computed and DSCP/ECN left
// at zero.
type SocketOptions struct {
	// Family selects IPv4 or IPv6. Defaults (wire.FamilyNone) to the family
	// of the local address chosen by Bind's addrIdx.
	Family wire.Family
	// ZeroUDPChecksum skips UDP checksum computation on transmit, leaving
	// the checksum field zero (RFC 768 "not computed", valid for UDP over
	// IPv4 only). In ossock mode this also requests the platform's
	// best-effort no-checksum sockopt; bypass mode always honors it.
	ZeroUDPChecksum bool
	// ECT0Default marks every outgoing datagram ECN Capable Transport(0)
	// by default, mirrored into each vector's DSCP/ECN byte unless the
	// caller already set one explicitly via arena.Vector.Flags.
	ECT0Default bool
}

// Socket is a bound (and optionally connected) UDP endpoint, the handle
// returned by Bind and consumed by Tx/Rx/Close.
type Socket struct {
	engine *Engine
	sock   *socktab.Socket
	family wire.Family
	conn   ossock.Conn // non-nil in OS-socket mode: this socket's own kernel UDP socket
	opts   SocketOptions
}

// Bind registers a new socket on the engine's addrIdx'th local address
// (see LocalAddrs), drawing a random ephemeral port if port is 0. In OS-socket mode
// this opens a dedicated kernel UDP socket for the binding (a real UDP
// socket owns exactly one local port, unlike the kernel-bypass backend's
// single shared TAP device) and starts a reader goroutine that forwards
// arrivals to NicRx; port 0 is resolved to the kernel-assigned port before
// the socket is registered in the engine's socket table.
func (e *Engine) Bind(addrIdx int, port uint16, opts SocketOptions) (*Socket, error) {
	if e.closed {
		return nil, ErrEngineClosed
	}
	if addrIdx < 0 || addrIdx >= len(e.addrs) {
		return nil, ErrNoSuchAddrIndex
	}
	iface := e.addrs[addrIdx]
	family := opts.Family
	if family == wire.FamilyNone {
		family = iface.Addr.Family()
	}

	var conn ossock.Conn
	if e.ossock {
		c, err := ossock.Listen(context.Background(), ossock.Config{
			Addr:      netip.AddrPortFrom(iface.Addr.Netip(), port),
			Interface: e.ifname,
		})
		if err != nil {
			return nil, fmt.Errorf("warpcore: bind: %w", err)
		}
		conn = c
		port = conn.LocalAddr().Port()
		if opts.ZeroUDPChecksum {
			_ = conn.SetNoChecksum(true) // best effort; unsupported platforms ignore it
		}
	}

	local := wire.SockAddr{IP: iface.Addr, Port: port, Zone: iface.Scope}
	sock, err := e.sockets.Bind(local, e.rnd)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	s := &Socket{engine: e, sock: sock, family: family, conn: conn, opts: opts}
	e.openSocks = append(e.openSocks, s)
	if e.metrics != nil {
		e.metrics.SetSocketCount(e.name, e.sockets.Len())
	}
	if conn != nil {
		go e.ossockRxPump(conn, local)
	}
	return s, nil
}

// Connect fixes the socket's peer, after which Tx no longer requires an
// explicit per-vector destination. Rerolls the local ephemeral port up to
// socktab's bounded retry count on collision, surfacing
// socktab.ErrPortExhausted rather than a truthy-zero result.
func (s *Socket) Connect(peer wire.SockAddr) error {
	if peer.IP.Family() != s.sock.Local.IP.Family() {
		return ErrFamilyMismatch
	}
	if err := s.engine.sockets.Connect(s.sock, peer, s.engine.rnd); err != nil {
		if s.engine.metrics != nil {
			s.engine.metrics.IncPortExhausted(s.engine.name)
		}
		return err
	}
	return nil
}

// Connected reports whether the socket has a fixed peer.
func (s *Socket) Connected() bool { return s.sock.Connected() }

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() wire.SockAddr { return s.sock.Local }

// RemoteAddr returns the socket's connected peer, or the zero value for a
// bound-only socket.
func (s *Socket) RemoteAddr() wire.SockAddr { return s.sock.Remote }

// Family returns the socket's address family.
func (s *Socket) Family() wire.Family { return s.family }

// Close releases the socket and drops any vectors still queued in its RX
// buffer back to the arena.
// In OS-socket mode this also closes the socket's own kernel UDP socket,
// unblocking its reader goroutine.
func (s *Socket) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
	s.engine.sockets.Close(s.sock)
	s.engine.arena.Free(&s.sock.RX)
	for i, open := range s.engine.openSocks {
		if open == s {
			s.engine.openSocks = append(s.engine.openSocks[:i], s.engine.openSocks[i+1:]...)
			break
		}
	}
	if s.engine.metrics != nil {
		s.engine.metrics.SetSocketCount(s.engine.name, s.engine.sockets.Len())
	}
}

// MaxUDPPayload returns the MTU minus this socket's family's IP and UDP
// headers.
func (s *Socket) MaxUDPPayload() uint16 {
	hdrLen := wire.SizeIPv4Header
	if s.family == wire.FamilyIPv6 {
		hdrLen = wire.SizeIPv6Header
	}
	total := int(s.engine.mtu) - hdrLen - wire.SizeUDPHeader
	if total < 0 {
		return 0
	}
	return uint16(total)
}

// Tx enqueues every vector in q for transmission, draining q. A vector
// with a zero SAddr is sent to the socket's connected peer; otherwise
// SAddr is used as an explicit per-datagram destination, for
// unconnected sendto-style use. Never blocks — actual transmission
// happens in NicTx.
func (s *Socket) Tx(q *arena.Queue) error {
	for v := q.PopHead(); v != nil; v = q.PopHead() {
		dst := v.SAddr
		if dst.IsZero() {
			if !s.Connected() {
				s.engine.arena.FreeIOV(v)
				return ErrNotConnected
			}
			dst = s.sock.Remote
		}
		if s.opts.ECT0Default && wire.DSCPECN(v.Flags).ECN() == wire.ECNNotECT {
			v.Flags = uint8(wire.NewDSCPECN(wire.DSCPECN(v.Flags).DSCP(), wire.ECNECT0))
		}
		s.engine.txPending = append(s.engine.txPending, pendingTX{
			local: s.sock.Local, dst: dst, v: v, conn: s.conn,
			zeroChecksum: s.opts.ZeroUDPChecksum,
		})
	}
	return nil
}

// Rx drains the socket's RX queue into out, returning the number of
// vectors moved. Never blocks.
func (s *Socket) Rx(out *arena.Queue) int {
	n := s.sock.RX.Len()
	out.Concat(&s.sock.RX)
	return n
}
