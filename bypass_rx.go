package warpcore

import (
	"context"

	"github.com/soypat/warpcore/wire"
)

// bypassRxPump reads raw frames off the driver and forwards copies to the
// owning goroutine via rxCh, doing no parsing itself: every frame is
// handled by NicRx on the engine's owning goroutine.
func (e *Engine) bypassRxPump() {
	buf := make([]byte, e.driver.MTU())
	for {
		n, err := e.driver.RecvInto(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		select {
		case e.rxCh <- rxItem{data: frame}:
		case <-e.closeCh:
			return
		}
	}
}

func (e *Engine) isLocalIPv4(dst [4]byte) bool {
	for _, a := range e.addrs {
		if !a.Addr.Is4() {
			continue
		}
		if a.Addr.As4() == dst {
			return true
		}
		if a.Derived.Is4() && a.Derived.As4() == dst {
			return true
		}
	}
	return dst == wire.LimitedBroadcastIPv4()
}

func (e *Engine) isLocalIPv6(dst [16]byte) bool {
	for _, a := range e.addrs {
		if a.Addr.Is6() && a.Addr.As16() == dst {
			return true
		}
	}
	target := wire.AddrFromIPv6(dst)
	for _, a := range e.addrs {
		if a.Addr.Is6() && wire.SolicitedNodeMulticast(a.Addr) == target {
			return true
		}
	}
	return false
}

// handleBypassFrame parses one raw Ethernet frame and either updates the
// neighbor table (ARP/NDP), dispatches a UDP datagram to a socket, or
// drops the frame with a log.
func (e *Engine) handleBypassFrame(data []byte) {
	if len(data) < wire.SizeEthernetHeader {
		e.dropped("short-frame")
		return
	}
	eth := wire.DecodeEthernetHeader(data)
	body := data[wire.SizeEthernetHeader:]

	switch eth.Type {
	case wire.EtherTypeARP:
		e.handleARP(body)
	case wire.EtherTypeIPv4:
		e.handleIPv4(body)
	case wire.EtherTypeIPv6:
		e.handleIPv6(body)
	default:
		e.dropped("unknown-ethertype")
	}
}

func (e *Engine) handleARP(body []byte) {
	req, err := wire.DecodeARPv4Header(body)
	if err != nil {
		e.dropped("bad-arp")
		return
	}
	e.neighbors.Update(wire.AddrFromIPv4Bytes(req.SenderProto), req.SenderHardware)

	if req.Operation != wire.ARPOpRequest || !e.isLocalIPv4(req.TargetProto) {
		return
	}
	// An ARP request for an address not equal to any local IPv4 address
	// is silently dropped — the isLocalIPv4 check above enforces that;
	// replying is the complementary case.
	reply := wire.NewARPReply(req, e.mac, req.TargetProto)
	buf := make([]byte, wire.SizeEthernetHeader+wire.SizeARPv4Header)
	ethHdr := wire.EthernetHeader{Destination: req.SenderHardware, Source: e.mac, Type: wire.EtherTypeARP}
	ethHdr.Put(buf[0:wire.SizeEthernetHeader])
	reply.Put(buf[wire.SizeEthernetHeader:])
	_ = e.driver.Send(buf)
}

func (e *Engine) handleIPv4(body []byte) {
	hdr, err := wire.ValidateIPv4(body, e.isLocalIPv4)
	if err != nil {
		e.dropped(string(err.(wire.IPv4ValidateError)))
		return
	}
	payload := body[wire.SizeIPv4Header:hdr.TotalLength]

	switch hdr.Protocol {
	case wire.ProtoUDP:
		e.handleUDPv4(hdr, body[:hdr.TotalLength], payload)
	case wire.ProtoICMPv4:
		e.handleICMPv4(hdr, payload)
	default:
		e.dropped("unknown-ip-proto")
	}
}

func (e *Engine) handleICMPv4(ip wire.IPv4Header, body []byte) {
	if len(body) < wire.SizeICMPHeader {
		e.dropped("short-icmp")
		return
	}
	if !wire.VerifyICMPv4Checksum(body) {
		e.dropped("bad-icmp-checksum")
		return
	}
	h := wire.DecodeICMPHeader(body)
	switch h.Type {
	case wire.ICMPv4EchoRequest:
		e.sendICMPv4EchoReply(ip, h, body[wire.SizeICMPHeader:])
	case wire.ICMPv4EchoReply, wire.ICMPv4DestUnreach:
		// replies and unreachables received by this engine are logged,
		// never acted on: warpcore issues no ICMP requests of its own.
		e.log.InfoRate("icmp4-informational", "received icmpv4 message", "type", h.Type, "code", h.Code)
	default:
		e.dropped("unknown-icmp-type")
	}
}

func (e *Engine) sendICMPv4EchoReply(ip wire.IPv4Header, req wire.ICMPHeader, payload []byte) {
	buf := make([]byte, wire.SizeEthernetHeader+wire.SizeIPv4Header+wire.SizeICMPHeader+len(payload))
	n := wire.BuildICMPv4EchoReply(buf[wire.SizeEthernetHeader+wire.SizeIPv4Header:], req, payload)

	src, _ := e.primaryAddrForFamily(wire.FamilyIPv4)
	ipHdr := wire.IPv4Header{
		Flags:       wire.IPv4FlagDF,
		TotalLength: uint16(wire.SizeIPv4Header + n),
		TTL:         wire.IPv4DefaultTTL,
		Protocol:    wire.ProtoICMPv4,
		Source:      src.As4(),
		Destination: ip.Source,
	}
	ipHdr.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv4Header])

	ctx, cancel := context.WithTimeout(context.Background(), neighborResolveTimeout)
	defer cancel()
	mac, err := e.neighbors.WhoHas(ctx, e.routeNeighbor(wire.AddrFromIPv4Bytes(ip.Source)), e)
	if err != nil {
		return
	}
	eth := wire.EthernetHeader{Destination: mac, Source: e.mac, Type: wire.EtherTypeIPv4}
	eth.Put(buf[0:wire.SizeEthernetHeader])
	_ = e.driver.Send(buf[:wire.SizeEthernetHeader+wire.SizeIPv4Header+n])
}

func (e *Engine) handleUDPv4(ip wire.IPv4Header, ipPacket, udpBuf []byte) {
	if len(udpBuf) < wire.SizeUDPHeader {
		e.dropped("short-udp")
		return
	}
	udp := wire.DecodeUDPHeader(udpBuf)
	if udp.Checksum != 0 && !wire.VerifyUDPChecksumV4(udpBuf, ip.Source, ip.Destination) {
		e.dropped("bad-udp-checksum")
		return
	}

	local := wire.SockAddr{IP: wire.AddrFromIPv4Bytes(ip.Destination), Port: udp.DestPort}
	remote := wire.SockAddr{IP: wire.AddrFromIPv4Bytes(ip.Source), Port: udp.SourcePort}
	payload := udpBuf[wire.SizeUDPHeader:]

	v := e.arena.AllocIOV(wire.FamilyIPv4, uint16(len(payload)), 0)
	if v == nil {
		e.dropped("arena-exhausted")
		return
	}
	copy(v.Payload(), payload)
	v.SAddr = remote
	v.TTL = ip.TTL
	v.Flags = uint8(ip.TOS)

	if !e.sockets.Dispatch(local, remote, v) {
		e.arena.FreeIOV(v)
		e.sendICMPv4Unreach(ip, ipPacket)
		return
	}
	if e.metrics != nil {
		e.metrics.IncPacketsRX(e.name)
	}
}

func (e *Engine) sendICMPv4Unreach(ip wire.IPv4Header, offending []byte) {
	limit := len(offending)
	if limit > 28 {
		limit = 28
	}
	buf := make([]byte, wire.SizeEthernetHeader+wire.SizeIPv4Header+wire.SizeICMPHeader+4+limit)
	n := wire.BuildICMPv4Unreach(buf[wire.SizeEthernetHeader+wire.SizeIPv4Header:], wire.ICMPv4CodePortUnreach, offending[:limit])

	src, _ := e.primaryAddrForFamily(wire.FamilyIPv4)
	ipHdr := wire.IPv4Header{
		Flags:       wire.IPv4FlagDF,
		TotalLength: uint16(wire.SizeIPv4Header + n),
		TTL:         wire.IPv4DefaultTTL,
		Protocol:    wire.ProtoICMPv4,
		Source:      src.As4(),
		Destination: ip.Source,
	}
	ipHdr.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv4Header])

	ctx, cancel := context.WithTimeout(context.Background(), neighborResolveTimeout)
	defer cancel()
	mac, err := e.neighbors.WhoHas(ctx, e.routeNeighbor(wire.AddrFromIPv4Bytes(ip.Source)), e)
	if err != nil {
		return
	}
	eth := wire.EthernetHeader{Destination: mac, Source: e.mac, Type: wire.EtherTypeIPv4}
	eth.Put(buf[0:wire.SizeEthernetHeader])
	_ = e.driver.Send(buf[:wire.SizeEthernetHeader+wire.SizeIPv4Header+n])
}

func (e *Engine) handleIPv6(body []byte) {
	hdr, err := wire.ValidateIPv6(body, e.isLocalIPv6)
	if err != nil {
		e.dropped(string(err.(wire.IPv6ValidateError)))
		return
	}
	ipPacket := body[:wire.SizeIPv6Header+int(hdr.PayloadLen)]
	payload := body[wire.SizeIPv6Header : wire.SizeIPv6Header+int(hdr.PayloadLen)]

	switch hdr.NextHeader {
	case wire.ProtoUDP:
		e.handleUDPv6(hdr, ipPacket, payload)
	case wire.ProtoICMPv6:
		e.handleICMPv6(hdr, payload)
	default:
		e.dropped("unknown-ip6-proto")
	}
}

func (e *Engine) handleUDPv6(ip wire.IPv6Header, udpPacket, udpBuf []byte) {
	if len(udpBuf) < wire.SizeUDPHeader {
		e.dropped("short-udp")
		return
	}
	udp := wire.DecodeUDPHeader(udpBuf)
	if !wire.VerifyUDPChecksumV6(udpBuf, ip.Source, ip.Destination) {
		e.dropped("bad-udp-checksum")
		return
	}

	local := wire.SockAddr{IP: wire.AddrFromIPv6(ip.Destination), Port: udp.DestPort}
	remote := wire.SockAddr{IP: wire.AddrFromIPv6(ip.Source), Port: udp.SourcePort}
	payload := udpBuf[wire.SizeUDPHeader:]

	v := e.arena.AllocIOV(wire.FamilyIPv6, uint16(len(payload)), 0)
	if v == nil {
		e.dropped("arena-exhausted")
		return
	}
	copy(v.Payload(), payload)
	v.SAddr = remote
	v.TTL = ip.HopLimit
	v.Flags = uint8(ip.TrafficClass)

	if !e.sockets.Dispatch(local, remote, v) {
		e.arena.FreeIOV(v)
		e.sendICMPv6Unreach(ip, udpPacket)
		return
	}
	if e.metrics != nil {
		e.metrics.IncPacketsRX(e.name)
	}
}

// sendICMPv6Unreach mirrors sendICMPv4Unreach: emitted when a UDP datagram
// arrives for a local address on a port no socket is bound to.
func (e *Engine) sendICMPv6Unreach(ip wire.IPv6Header, offending []byte) {
	const minIPv6MTU = 1280
	limit := len(offending)
	if max := minIPv6MTU - wire.SizeEthernetHeader - wire.SizeIPv6Header - wire.SizeICMPHeader - 4; limit > max {
		limit = max
	}
	buf := make([]byte, wire.SizeEthernetHeader+wire.SizeIPv6Header+wire.SizeICMPHeader+4+limit)
	src, _ := e.primaryAddrForFamily(wire.FamilyIPv6)
	n := wire.BuildICMPv6Unreach(buf[wire.SizeEthernetHeader+wire.SizeIPv6Header:], wire.ICMPv6CodePortUnreach, offending[:limit], src.As16(), ip.Source)

	ipHdr := wire.IPv6Header{
		PayloadLen:  uint16(n),
		NextHeader:  wire.ProtoICMPv6,
		HopLimit:    wire.IPv6DefaultHopLimit,
		Source:      src.As16(),
		Destination: ip.Source,
	}
	ipHdr.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv6Header])

	ctx, cancel := context.WithTimeout(context.Background(), neighborResolveTimeout)
	defer cancel()
	mac, err := e.neighbors.WhoHas(ctx, e.routeNeighbor(wire.AddrFromIPv6(ip.Source)), e)
	if err != nil {
		return
	}
	eth := wire.EthernetHeader{Destination: mac, Source: e.mac, Type: wire.EtherTypeIPv6}
	eth.Put(buf[0:wire.SizeEthernetHeader])
	_ = e.driver.Send(buf[:wire.SizeEthernetHeader+wire.SizeIPv6Header+n])
}

func (e *Engine) handleICMPv6(ip wire.IPv6Header, body []byte) {
	if len(body) < wire.SizeICMPHeader {
		return
	}
	h := wire.DecodeICMPHeader(body)
	switch h.Type {
	case wire.ICMPv6NeighborSolicit:
		target := wire.NeighborSolicitationTarget(body[wire.SizeICMPHeader:])
		if mac, ok := wire.ParseNDPLinkAddrOpt(body[wire.SizeICMPHeader:], wire.NDPOptSourceLinkAddr); ok {
			e.neighbors.Update(wire.AddrFromIPv6(ip.Source), mac)
		}
		if !e.isLocalIPv6(target) {
			return
		}
		src, _ := e.primaryAddrForFamily(wire.FamilyIPv6)
		buf := make([]byte, wire.SizeEthernetHeader+wire.SizeIPv6Header+wire.SizeICMPHeader+4+16+wire.SizeNDPLinkAddrOpt)
		n := wire.BuildNeighborAdvertisement(buf[wire.SizeEthernetHeader+wire.SizeIPv6Header:], target, e.mac, src.As16(), ip.Source)
		ipHdr := wire.IPv6Header{PayloadLen: uint16(n), NextHeader: wire.ProtoICMPv6, HopLimit: wire.IPv6DefaultHopLimit, Source: src.As16(), Destination: ip.Source}
		ipHdr.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv6Header])
		eth := wire.EthernetHeader{Destination: eth6DestMAC(ip, e), Source: e.mac, Type: wire.EtherTypeIPv6}
		eth.Put(buf[0:wire.SizeEthernetHeader])
		_ = e.driver.Send(buf[:wire.SizeEthernetHeader+wire.SizeIPv6Header+n])
	case wire.ICMPv6NeighborAdvert:
		if mac, ok := wire.ParseNDPLinkAddrOpt(body[wire.SizeICMPHeader:], wire.NDPOptTargetLinkAddr); ok {
			target := wire.NeighborSolicitationTarget(body[wire.SizeICMPHeader:])
			e.neighbors.Update(wire.AddrFromIPv6(target), mac)
		}
	case wire.ICMPv6EchoRequest:
		if !wire.VerifyICMPv6Checksum(body, ip.Source, ip.Destination) {
			e.dropped("bad-icmp-checksum")
			return
		}
		e.sendICMPv6EchoReply(ip, h, body[wire.SizeICMPHeader:])
	case wire.ICMPv6EchoReply, wire.ICMPv6DestUnreach:
		// replies and unreachables received by this engine are logged,
		// never acted on: warpcore issues no ICMPv6 requests of its own.
		e.log.InfoRate("icmp6-informational", "received icmpv6 message", "type", h.Type, "code", h.Code)
	default:
		e.dropped("unknown-icmp6-type")
	}
}

func (e *Engine) sendICMPv6EchoReply(ip wire.IPv6Header, req wire.ICMPHeader, payload []byte) {
	src, _ := e.primaryAddrForFamily(wire.FamilyIPv6)
	buf := make([]byte, wire.SizeEthernetHeader+wire.SizeIPv6Header+wire.SizeICMPHeader+len(payload))
	n := wire.BuildICMPv6EchoReply(buf[wire.SizeEthernetHeader+wire.SizeIPv6Header:], req, payload, src.As16(), ip.Source)

	ipHdr := wire.IPv6Header{
		PayloadLen:  uint16(n),
		NextHeader:  wire.ProtoICMPv6,
		HopLimit:    wire.IPv6DefaultHopLimit,
		Source:      src.As16(),
		Destination: ip.Source,
	}
	ipHdr.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv6Header])

	ctx, cancel := context.WithTimeout(context.Background(), neighborResolveTimeout)
	defer cancel()
	mac, err := e.neighbors.WhoHas(ctx, e.routeNeighbor(wire.AddrFromIPv6(ip.Source)), e)
	if err != nil {
		return
	}
	eth := wire.EthernetHeader{Destination: mac, Source: e.mac, Type: wire.EtherTypeIPv6}
	eth.Put(buf[0:wire.SizeEthernetHeader])
	_ = e.driver.Send(buf[:wire.SizeEthernetHeader+wire.SizeIPv6Header+n])
}

func eth6DestMAC(ip wire.IPv6Header, e *Engine) wire.EthAddr {
	if mac, ok := e.neighbors.Lookup(wire.AddrFromIPv6(ip.Source)); ok {
		return mac
	}
	return wire.EthBroadcast
}

func (e *Engine) dropped(reason string) {
	if e.metrics != nil {
		e.metrics.IncPacketsDropped(e.name, reason)
	}
	e.log.WarnRate("drop:"+reason, "dropped frame", "reason", reason)
}
