//go:build linux

package ossock

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

type linuxConn struct {
	conn   *net.UDPConn
	local  netip.AddrPort
	isIPv6 bool
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
}

func listen(ctx context.Context, cfg Config) (Conn, error) {
	isIPv6 := cfg.Addr.Addr().Is6() && !cfg.Addr.Addr().Is4In6()

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSockOpts(c, cfg.Interface, isIPv6)
		},
	}

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

	lcn := &linuxConn{conn: conn, local: local, isIPv6: isIPv6}
	if isIPv6 {
		lcn.p6 = ipv6.NewPacketConn(conn)
		_ = lcn.p6.SetControlMessage(ipv6.FlagHopLimit|ipv6.FlagSrc|ipv6.FlagDst|ipv6.FlagInterface, true)
	} else {
		lcn.p4 = ipv4.NewPacketConn(conn)
		_ = lcn.p4.SetControlMessage(ipv4.FlagTTL|ipv4.FlagSrc|ipv4.FlagDst|ipv4.FlagInterface, true)
	}
	return lcn, nil
}

func setSockOpts(c syscall.RawConn, ifName string, isIPv6 bool) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		intFD := int(fd)
		if err := unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", err)
			return
		}
		if ifName != "" {
			if err := unix.SetsockoptString(intFD, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName); err != nil {
				sockErr = fmt.Errorf("set SO_BINDTODEVICE(%s): %w", ifName, err)
				return
			}
		}
		if isIPv6 {
			sockErr = applyV6(intFD)
		} else {
			sockErr = applyV4(intFD)
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

func applyV4(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_RECVTTL, 1); err != nil {
		return fmt.Errorf("set IP_RECVTTL: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_PKTINFO, 1); err != nil {
		return fmt.Errorf("set IP_PKTINFO: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_RECVTOS, 1); err != nil {
		return fmt.Errorf("set IP_RECVTOS: %w", err)
	}
	return nil
}

func applyV6(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVHOPLIMIT, 1); err != nil {
		return fmt.Errorf("set IPV6_RECVHOPLIMIT: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
		return fmt.Errorf("set IPV6_RECVPKTINFO: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVTCLASS, 1); err != nil {
		return fmt.Errorf("set IPV6_RECVTCLASS: %w", err)
	}
	return nil
}

// ReadBatch reads up to len(bufs) datagrams via recvmmsg (ipv4.PacketConn /
// ipv6.PacketConn's ReadBatch), returning one InPacket per datagram read,
// index-aligned with bufs.
func (c *linuxConn) ReadBatch(bufs [][]byte) ([]InPacket, error) {
	if len(bufs) == 0 {
		return nil, nil
	}
	if c.isIPv6 {
		msgs := make([]ipv6.Message, len(bufs))
		for i := range bufs {
			msgs[i].Buffers = [][]byte{bufs[i]}
			msgs[i].OOB = make([]byte, oobSize)
		}
		n, err := c.p6.ReadBatch(msgs, 0)
		if err != nil {
			return nil, fmt.Errorf("ossock: read batch: %w", err)
		}
		out := make([]InPacket, n)
		for i := 0; i < n; i++ {
			out[i] = InPacket{N: msgs[i].N, Meta: packetMetaFromIPv6(msgs[i])}
		}
		return out, nil
	}

	msgs := make([]ipv4.Message, len(bufs))
	for i := range bufs {
		msgs[i].Buffers = [][]byte{bufs[i]}
		msgs[i].OOB = make([]byte, oobSize)
	}
	n, err := c.p4.ReadBatch(msgs, 0)
	if err != nil {
		return nil, fmt.Errorf("ossock: read batch: %w", err)
	}
	out := make([]InPacket, n)
	for i := 0; i < n; i++ {
		out[i] = InPacket{N: msgs[i].N, Meta: packetMetaFromIPv4(msgs[i])}
	}
	return out, nil
}

func packetMetaFromIPv4(m ipv4.Message) PacketMeta {
	var meta PacketMeta
	if addr, ok := m.Addr.(*net.UDPAddr); ok {
		meta.Src = addr.AddrPort()
	}
	cm := &ipv4.ControlMessage{}
	if m.NN > 0 && cm.Parse(m.OOB[:m.NN]) == nil {
		meta.TTL = uint8(cm.TTL)
		if len(cm.Dst) > 0 {
			if ip, ok := netip.AddrFromSlice(cm.Dst); ok {
				meta.Local = ip
			}
		}
	}
	// ipv4.ControlMessage has no TOS field; read IP_TOS directly.
	if m.NN > 0 {
		if cmsgs, err := unix.ParseSocketControlMessage(m.OOB[:m.NN]); err == nil {
			for i := range cmsgs {
				h := cmsgs[i].Header
				if h.Level == unix.IPPROTO_IP && h.Type == unix.IP_TOS && len(cmsgs[i].Data) >= 1 {
					meta.DSCPECN = cmsgs[i].Data[0]
				}
			}
		}
	}
	return meta
}

func packetMetaFromIPv6(m ipv6.Message) PacketMeta {
	var meta PacketMeta
	if addr, ok := m.Addr.(*net.UDPAddr); ok {
		meta.Src = addr.AddrPort()
	}
	cm := &ipv6.ControlMessage{}
	if m.NN > 0 && cm.Parse(m.OOB[:m.NN]) == nil {
		meta.TTL = uint8(cm.HopLimit)
		meta.DSCPECN = uint8(cm.TrafficClass)
		if len(cm.Dst) > 0 {
			if ip, ok := netip.AddrFromSlice(cm.Dst); ok {
				meta.Local = ip
			}
		}
	}
	return meta
}

// WriteBatch sends pkts via sendmmsg (ipv4.PacketConn / ipv6.PacketConn's
// WriteBatch). Per-message TTL is carried through each message's control
// data; DSCP/ECN is not representable per-message in a single sendmmsg
// call, so WriteBatch applies the batch's first non-zero DSCPECN as a
// socket-wide IP_TOS/IPV6_TCLASS default before sending — adequate for
// warpcore's use, since a socket's DSCPECN is uniform for the socket's
// lifetime (SocketOptions.ECT0Default), never varied datagram-to-datagram.
func (c *linuxConn) WriteBatch(pkts []OutPacket) (int, error) {
	if len(pkts) == 0 {
		return 0, nil
	}
	if err := c.applyBatchDSCPECN(pkts); err != nil {
		return 0, err
	}
	if c.isIPv6 {
		msgs := make([]ipv6.Message, len(pkts))
		for i, p := range pkts {
			msgs[i].Buffers = [][]byte{p.Buf}
			msgs[i].Addr = net.UDPAddrFromAddrPort(p.Dst)
			if p.TTL != 0 {
				cm := ipv6.ControlMessage{HopLimit: int(p.TTL)}
				msgs[i].OOB = cm.Marshal()
			}
		}
		n, err := c.p6.WriteBatch(msgs, 0)
		if err != nil {
			return n, fmt.Errorf("ossock: write batch: %w", err)
		}
		return n, nil
	}

	msgs := make([]ipv4.Message, len(pkts))
	for i, p := range pkts {
		msgs[i].Buffers = [][]byte{p.Buf}
		msgs[i].Addr = net.UDPAddrFromAddrPort(p.Dst)
		if p.TTL != 0 {
			cm := ipv4.ControlMessage{TTL: int(p.TTL)}
			msgs[i].OOB = cm.Marshal()
		}
	}
	n, err := c.p4.WriteBatch(msgs, 0)
	if err != nil {
		return n, fmt.Errorf("ossock: write batch: %w", err)
	}
	return n, nil
}

func (c *linuxConn) applyBatchDSCPECN(pkts []OutPacket) error {
	var dscpEcn uint8
	for _, p := range pkts {
		if p.DSCPECN != 0 {
			dscpEcn = p.DSCPECN
			break
		}
	}
	if dscpEcn == 0 {
		return nil
	}
	rc, err := c.conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("ossock: syscall conn: %w", err)
	}
	var sockErr error
	ctlErr := rc.Control(func(fd uintptr) {
		if c.isIPv6 {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, int(dscpEcn))
		} else {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, int(dscpEcn))
		}
	})
	if ctlErr != nil {
		return fmt.Errorf("ossock: raw conn control: %w", ctlErr)
	}
	if sockErr != nil {
		return fmt.Errorf("ossock: set batch dscp/ecn: %w", sockErr)
	}
	return nil
}

func (c *linuxConn) SetNoChecksum(disable bool) error {
	rc, err := c.conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("ossock: syscall conn: %w", err)
	}
	v := 0
	if disable {
		v = 1
	}
	var sockErr error
	ctlErr := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_NO_CHECK, v)
	})
	if ctlErr != nil {
		return fmt.Errorf("ossock: raw conn control: %w", ctlErr)
	}
	if sockErr != nil {
		return fmt.Errorf("ossock: set SO_NO_CHECK: %w", sockErr)
	}
	return nil
}

func (c *linuxConn) LocalAddr() netip.AddrPort { return c.local }

func (c *linuxConn) Close() error { return c.conn.Close() }

func (c *linuxConn) WritePacket(buf []byte, dst netip.AddrPort, ttl, dscpEcn uint8) error {
	rc, err := c.conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("ossock: syscall conn: %w", err)
	}
	isIPv6 := dst.Addr().Is6() && !dst.Addr().Is4In6()
	var sockErr error
	ctlErr := rc.Control(func(fd uintptr) {
		intFD := int(fd)
		if isIPv6 {
			if ttl != 0 {
				sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, int(ttl))
			}
			if sockErr == nil && dscpEcn != 0 {
				sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, int(dscpEcn))
			}
		} else {
			if ttl != 0 {
				sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IP, unix.IP_TTL, int(ttl))
			}
			if sockErr == nil && dscpEcn != 0 {
				sockErr = unix.SetsockoptInt(intFD, unix.IPPROTO_IP, unix.IP_TOS, int(dscpEcn))
			}
		}
	})
	if ctlErr != nil {
		return fmt.Errorf("ossock: set per-packet sockopt: %w", ctlErr)
	}
	if sockErr != nil {
		return fmt.Errorf("ossock: set per-packet sockopt: %w", sockErr)
	}

	_, err = c.conn.WriteToUDPAddrPort(buf, dst)
	if err != nil {
		return fmt.Errorf("ossock: write to %s: %w", dst, err)
	}
	return nil
}

func (c *linuxConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	oob := make([]byte, oobSize)
	n, oobn, _, src, err := c.conn.ReadMsgUDPAddrPort(buf, oob)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("ossock: read: %w", err)
	}

	meta := PacketMeta{Src: src}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err == nil {
		for i := range msgs {
			h := msgs[i].Header
			switch {
			case h.Level == unix.IPPROTO_IP && h.Type == unix.IP_TTL && len(msgs[i].Data) >= 1:
				meta.TTL = msgs[i].Data[0]
			case h.Level == unix.IPPROTO_IP && h.Type == unix.IP_TOS && len(msgs[i].Data) >= 1:
				meta.DSCPECN = msgs[i].Data[0]
			case h.Level == unix.IPPROTO_IPV6 && h.Type == unix.IPV6_HOPLIMIT && len(msgs[i].Data) >= 4:
				meta.TTL = msgs[i].Data[0]
			case h.Level == unix.IPPROTO_IPV6 && h.Type == unix.IPV6_TCLASS && len(msgs[i].Data) >= 4:
				meta.DSCPECN = msgs[i].Data[0]
			}
		}
	}
	return n, meta, nil
}
