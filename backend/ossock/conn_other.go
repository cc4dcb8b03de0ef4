//go:build !linux

package ossock

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// portableConn is the non-Linux fallback: a plain UDP socket from
// net.ListenConfig, without the SO_REUSEADDR/SO_BINDTODEVICE options and
// the TTL/TOS ancillary data plumbing conn_linux.go sets up through
// golang.org/x/sys/unix —
// those control-message layouts are platform-specific and the engine
// degrades to TTL=0/DSCPECN=0 metadata on receive here rather than
// guessing a wrong layout. See DESIGN.md.
type portableConn struct {
	conn  *net.UDPConn
	local netip.AddrPort
}

func listen(ctx context.Context, cfg Config) (Conn, error) {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, networkFor(cfg.Addr.Addr()), cfg.Addr.String())
	if err != nil {
		return nil, fmt.Errorf("ossock: listen %s: %w", cfg.Addr, err)
	}
	conn, err := udpConnFromPacketConn(pc)
	if err != nil {
		return nil, err
	}
	local := cfg.Addr
	if udpAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		local = udpAddr.AddrPort()
	}
	return &portableConn{conn: conn, local: local}, nil
}

func (c *portableConn) LocalAddr() netip.AddrPort { return c.local }
func (c *portableConn) Close() error              { return c.conn.Close() }

// SetNoChecksum is a no-op outside Linux: no portable equivalent of
// SO_NO_CHECK exists, so the request is silently ignored rather than
// failing the bind.
func (c *portableConn) SetNoChecksum(disable bool) error { return nil }

func (c *portableConn) WritePacket(buf []byte, dst netip.AddrPort, _, _ uint8) error {
	_, err := c.conn.WriteToUDPAddrPort(buf, dst)
	if err != nil {
		return fmt.Errorf("ossock: write to %s: %w", dst, err)
	}
	return nil
}

func (c *portableConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	n, src, err := c.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("ossock: read: %w", err)
	}
	return n, PacketMeta{Src: src}, nil
}

// ReadBatch has no recvmmsg equivalent outside Linux: it reads exactly one
// datagram into bufs[0] per call, an honest degrade rather than a fake
// batch.
func (c *portableConn) ReadBatch(bufs [][]byte) ([]InPacket, error) {
	if len(bufs) == 0 {
		return nil, nil
	}
	n, meta, err := c.ReadPacket(bufs[0])
	if err != nil {
		return nil, err
	}
	return []InPacket{{N: n, Meta: meta}}, nil
}

// WriteBatch has no sendmmsg equivalent outside Linux: it sends pkts one
// at a time, stopping at the first error.
func (c *portableConn) WriteBatch(pkts []OutPacket) (int, error) {
	for i, p := range pkts {
		if err := c.WritePacket(p.Buf, p.Dst, p.TTL, p.DSCPECN); err != nil {
			return i, err
		}
	}
	return len(pkts), nil
}
