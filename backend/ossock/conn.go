// Package ossock implements the OS-socket backend: a
// transport built on ordinary UDP sockets instead of a kernel-bypass
// driver, configured to surface and control the per-packet TTL/hop-limit
// and DSCP/ECN fields the engine's wire codecs need.
package ossock

import (
	"context"
	"errors"
	"net"
	"net/netip"
)

// oobSize bounds the ancillary-data buffer used to read TTL/hop-limit,
// TOS/traffic-class and PKTINFO control messages off a UDP socket. On
// 64-bit Linux, IPv4's IP_PKTINFO (32 bytes) plus IP_TTL (24 bytes) plus
// IP_TOS (24 bytes) take 80 bytes; IPv6's IPV6_PKTINFO (40 bytes) plus
// IPV6_HOPLIMIT (24 bytes) plus IPV6_TCLASS (24 bytes) take 88 bytes.
// Rounded up for alignment safety.
const oobSize = 128

// PacketMeta carries the per-datagram metadata the engine's wire codecs
// populate into a vector: the TTL/hop-limit and DSCP/ECN the kernel
// observed on receive, and (if IP_PKTINFO/IPV6_PKTINFO was available) the
// local address the datagram actually arrived on.
type PacketMeta struct {
	Src     netip.AddrPort
	TTL     uint8
	DSCPECN uint8
	Local   netip.Addr
}

// MaxBatchSize bounds how many datagrams ReadBatch/WriteBatch move in a
// single recvmmsg/sendmmsg-equivalent syscall.
const MaxBatchSize = 64

// InPacket is one datagram filled in by Conn.ReadBatch: N is the number of
// bytes written into the corresponding buffer passed to ReadBatch.
type InPacket struct {
	N    int
	Meta PacketMeta
}

// OutPacket is one datagram queued for Conn.WriteBatch.
type OutPacket struct {
	Buf     []byte
	Dst     netip.AddrPort
	TTL     uint8
	DSCPECN uint8
}

// Conn is the transport a socktab.Socket reads and writes through. It
// abstracts the platform-specific sockopt wiring in conn_linux.go /
// conn_other.go behind a single portable interface.
type Conn interface {
	ReadPacket(buf []byte) (int, PacketMeta, error)
	WritePacket(buf []byte, dst netip.AddrPort, ttl, dscpEcn uint8) error
	// ReadBatch fills bufs[i] with the i'th datagram read, for as many
	// datagrams as are immediately available (up to len(bufs)), in as few
	// syscalls as the platform allows.
	ReadBatch(bufs [][]byte) ([]InPacket, error)
	// WriteBatch sends every entry of pkts in as few syscalls as the
	// platform allows, returning the number actually sent before the
	// first error, if any.
	WriteBatch(pkts []OutPacket) (int, error)
	// SetNoChecksum requests the platform's best-effort UDP no-checksum
	// mode (Linux's SO_NO_CHECK) for every datagram this socket sends
	// afterward. Not all platforms support it; callers should treat a
	// non-nil error as informational, not fatal.
	SetNoChecksum(disable bool) error
	LocalAddr() netip.AddrPort
	Close() error
}

// ErrUnexpectedConnType is returned when net.ListenConfig.ListenPacket
// hands back something other than *net.UDPConn, which should not happen
// for the udp4/udp6 networks this package requests.
var ErrUnexpectedConnType = errors.New("ossock: unexpected connection type from ListenPacket")

// Config selects the bind address and the optional bound interface.
type Config struct {
	Addr      netip.AddrPort
	Interface string // SO_BINDTODEVICE target; empty to skip
}

// Listen opens a UDP socket per cfg. On Linux the socket gets SO_REUSEADDR,
// SO_BINDTODEVICE if cfg.Interface is set, and
// IP_RECVTTL/IP_PKTINFO/IP_RECVTOS (IPv4) or
// IPV6_RECVHOPLIMIT/IPV6_RECVPKTINFO/IPV6_RECVTCLASS (IPv6); on other
// platforms it is a plain UDP socket (see conn_other.go).
func Listen(ctx context.Context, cfg Config) (Conn, error) {
	return listen(ctx, cfg)
}

func networkFor(addr netip.Addr) string {
	if addr.Is4() || addr.Is4In6() {
		return "udp4"
	}
	return "udp6"
}

func udpConnFromPacketConn(pc net.PacketConn) (*net.UDPConn, error) {
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, ErrUnexpectedConnType
	}
	return conn, nil
}
