package warpcore

import (
	"context"
	"fmt"
	"time"

	"github.com/soypat/warpcore/wire"
)

// neighborResolveTimeout bounds how long bypassTransmit will wait for an
// ARP/NDP reply before giving up — a deliberate simplification over a
// separate pending-ARP retransmit queue: an unresolved
// neighbor is resolved synchronously, inline, with a generous but finite
// budget instead of parking the datagram.
const neighborResolveTimeout = 2 * time.Second

func (e *Engine) buildARPRequest(buf []byte, target wire.Addr) int {
	src, _ := e.primaryAddrForFamily(wire.FamilyIPv4)
	req := wire.NewARPRequest(e.mac, src.As4(), target.As4())

	eth := wire.EthernetHeader{Destination: wire.EthBroadcast, Source: e.mac, Type: wire.EtherTypeARP}
	eth.Put(buf[0:wire.SizeEthernetHeader])
	req.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeARPv4Header])
	return wire.SizeEthernetHeader + wire.SizeARPv4Header
}

func (e *Engine) buildNeighborSolicitation(buf []byte, target wire.Addr) int {
	src, _ := e.primaryAddrForFamily(wire.FamilyIPv6)
	dstMAC := wire.SolicitedNodeMulticastMAC(wire.SolicitedNodeMulticast(target))
	dstIP := wire.SolicitedNodeMulticast(target).As16()

	icmpBuf := buf[wire.SizeEthernetHeader+wire.SizeIPv6Header:]
	n := wire.BuildNeighborSolicitation(icmpBuf, target.As16(), e.mac, src.As16(), dstIP)

	ip := wire.IPv6Header{
		PayloadLen:  uint16(n),
		NextHeader:  wire.ProtoICMPv6,
		HopLimit:    wire.IPv6DefaultHopLimit,
		Source:      src.As16(),
		Destination: dstIP,
	}
	ip.Put(buf[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv6Header])

	eth := wire.EthernetHeader{Destination: dstMAC, Source: e.mac, Type: wire.EtherTypeIPv6}
	eth.Put(buf[0:wire.SizeEthernetHeader])

	return wire.SizeEthernetHeader + wire.SizeIPv6Header + n
}

// bypassTransmit resolves p's next-hop link-layer address (blocking briefly
// if unresolved) and frames p.v as a complete Ethernet+IP+UDP datagram
// before handing it to the driver.
func (e *Engine) bypassTransmit(p pendingTX) error {
	af := p.dst.IP.Family()
	target := e.routeNeighbor(p.dst.IP)

	ctx, cancel := context.WithTimeout(context.Background(), neighborResolveTimeout)
	defer cancel()
	mac, err := e.neighbors.WhoHas(ctx, target, e)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}

	ipHdrLen := wire.SizeIPv4Header
	if af == wire.FamilyIPv6 {
		ipHdrLen = wire.SizeIPv6Header
	}
	hdrLen := wire.SizeEthernetHeader + ipHdrLen + wire.SizeUDPHeader
	frame := p.v.Frame(hdrLen)

	udpBuf := frame[wire.SizeEthernetHeader+ipHdrLen:]
	udp := wire.UDPHeader{SourcePort: p.local.Port, DestPort: p.dst.Port, Length: uint16(len(udpBuf))}
	udp.Put(udpBuf[:wire.SizeUDPHeader])

	ethType := wire.EtherTypeIPv4
	if af == wire.FamilyIPv6 {
		ethType = wire.EtherTypeIPv6
	}
	eth := wire.EthernetHeader{Destination: mac, Source: e.mac, Type: ethType}
	eth.Put(frame[0:wire.SizeEthernetHeader])

	if af == wire.FamilyIPv4 {
		if !p.zeroChecksum {
			wire.FinishUDPChecksumV4(udpBuf, p.local.IP.As4(), p.dst.IP.As4())
		}
		ip := wire.IPv4Header{
			TOS:         wire.DSCPECN(p.v.Flags),
			TotalLength: uint16(ipHdrLen + len(udpBuf)),
			ID:          e.rnd.IPv4ID(),
			Flags:       wire.IPv4FlagDF,
			TTL:         wire.IPv4DefaultTTL,
			Protocol:    wire.ProtoUDP,
			Source:      p.local.IP.As4(),
			Destination: p.dst.IP.As4(),
		}
		ip.Put(frame[wire.SizeEthernetHeader : wire.SizeEthernetHeader+ipHdrLen])
	} else {
		if !p.zeroChecksum {
			wire.FinishUDPChecksumV6(udpBuf, p.local.IP.As16(), p.dst.IP.As16())
		}
		ip := wire.IPv6Header{
			TrafficClass: wire.DSCPECN(p.v.Flags),
			PayloadLen:   uint16(len(udpBuf)),
			NextHeader:   wire.ProtoUDP,
			HopLimit:     wire.IPv6DefaultHopLimit,
			Source:       p.local.IP.As16(),
			Destination:  p.dst.IP.As16(),
		}
		ip.Put(frame[wire.SizeEthernetHeader : wire.SizeEthernetHeader+ipHdrLen])
	}

	return e.driver.Send(frame)
}
