package warpcore

import (
	"net/netip"

	"github.com/soypat/warpcore/backend/ossock"
	"github.com/soypat/warpcore/wire"
)

// ossockRxPump reads datagrams off one socket's own kernel UDP socket and
// forwards copies to the owning goroutine via rxCh, doing no dispatch
// itself — mirrors bypassRxPump's split between a dumb reader goroutine
// and NicRx's synchronous handling.
func (e *Engine) ossockRxPump(conn ossock.Conn, local wire.SockAddr) {
	bufs := make([][]byte, ossock.MaxBatchSize)
	for i := range bufs {
		bufs[i] = make([]byte, 65535)
	}
	for {
		pkts, err := conn.ReadBatch(bufs)
		if err != nil {
			return
		}
		for i, pkt := range pkts {
			data := make([]byte, pkt.N)
			copy(data, bufs[i][:pkt.N])
			select {
			case e.rxCh <- rxItem{data: data, meta: pkt.Meta, local: local}:
			case <-e.closeCh:
				return
			}
		}
	}
}

// handleOssockPacket allocates a vector for one kernel-delivered datagram
// and dispatches it to whichever socket owns local, matching the
// kernel-bypass path's handleUDPv4/handleUDPv6. A packet
// that reaches here already passed the kernel's own header validation, so
// unlike the bypass path there is no checksum or TTL to verify.
func (e *Engine) handleOssockPacket(data []byte, meta ossock.PacketMeta, local wire.SockAddr) {
	remote := sockAddrFromAddrPort(meta.Src)
	af := wire.FamilyIPv4
	if meta.Src.Addr().Is6() && !meta.Src.Addr().Is4In6() {
		af = wire.FamilyIPv6
	}

	v := e.arena.AllocIOV(af, uint16(len(data)), 0)
	if v == nil {
		e.dropped("arena-exhausted")
		return
	}
	copy(v.Payload(), data)
	v.SAddr = remote
	v.TTL = meta.TTL
	v.Flags = meta.DSCPECN

	if !e.sockets.Dispatch(local, remote, v) {
		e.arena.FreeIOV(v)
		e.dropped("unclaimed")
		return
	}
	if e.metrics != nil {
		e.metrics.IncPacketsRX(e.name)
	}
}

func addrPortFromSockAddr(s wire.SockAddr) netip.AddrPort {
	return netip.AddrPortFrom(s.IP.Netip(), s.Port)
}

func sockAddrFromAddrPort(ap netip.AddrPort) wire.SockAddr {
	return wire.SockAddr{IP: wire.AddrFromNetip(ap.Addr()), Port: ap.Port()}
}
