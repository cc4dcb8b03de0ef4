package warpcore

import (
	"context"
	"testing"
	"time"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/wire"
	"github.com/stretchr/testify/require"
)

func pipeIPv4Addrs(lastOctet byte) []wire.IfaceAddr {
	return []wire.IfaceAddr{{Addr: wire.AddrFromIPv4(192, 168, 1, lastOctet), PrefixLen: 24}}
}

func pipeIPv6Addrs(lastByte byte) []wire.IfaceAddr {
	var b [16]byte
	b[0], b[1] = 0xfe, 0x80
	b[15] = lastByte
	return []wire.IfaceAddr{{Addr: wire.AddrFromIPv6(b), PrefixLen: 64}}
}

// TestBypassPipeEchoResolvesARPThenDelivers exercises end-to-end scenario
//1 (echo round trip) over the kernel-bypass backend, with the first
// datagram forcing an ARP resolution: A has never seen B's MAC, so
// bypassTransmit must block on neighbor.Table.WhoHas, which in turn drives
// A's own PumpRX while B answers the ARP request on its own goroutine.
func TestBypassPipeEchoResolvesARPThenDelivers(t *testing.T) {
	macA := wire.EthAddr{0x02, 0, 0, 0, 0, 0xa}
	macB := wire.EthAddr{0x02, 0, 0, 0, 0, 0xb}
	a, b, err := InitPipe(t.Name(), macA, macB, pipeIPv4Addrs(1), pipeIPv4Addrs(2), 64)
	require.NoError(t, err)
	t.Cleanup(a.Cleanup)
	t.Cleanup(b.Cleanup)

	server, err := b.Bind(0, 9001, SocketOptions{})
	require.NoError(t, err)
	client, err := a.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	require.NoError(t, client.Connect(server.LocalAddr()))

	received := make(chan string, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() {
		for {
			if !b.NicRx(ctx, -1) {
				return
			}
			var ready []*Socket
			b.RxReady(&ready)
			for _, s := range ready {
				var in arena.Queue
				s.Rx(&in)
				var got string
				in.Each(func(v *arena.Vector) { got += string(v.Payload()) })
				b.Free(&in)
				if got != "" {
					received <- got
					return
				}
			}
		}
	}()

	var out arena.Queue
	a.AllocLen(wire.FamilyIPv4, &out, 5, 0, 0)
	out.Each(func(v *arena.Vector) { copy(v.Payload(), "pingo") })
	require.NoError(t, client.Tx(&out))
	require.NoError(t, a.NicTx())

	select {
	case got := <-received:
		require.Equal(t, "pingo", got)
	case <-ctx.Done():
		t.Fatal("timed out waiting for datagram to arrive on B")
	}

	require.Equal(t, 1, a.neighbors.Len())
}

// TestBypassPipeNDPResolvesIPv6Neighbor exercises the IPv6 analogue of the
// ARP resolution path: A solicits B's link-layer address via NDP before
// its first IPv6 datagram can be framed.
func TestBypassPipeNDPResolvesIPv6Neighbor(t *testing.T) {
	macA := wire.EthAddr{0x02, 0, 0, 0, 1, 0xa}
	macB := wire.EthAddr{0x02, 0, 0, 0, 1, 0xb}
	a, b, err := InitPipe(t.Name(), macA, macB, pipeIPv6Addrs(1), pipeIPv6Addrs(2), 64)
	require.NoError(t, err)
	t.Cleanup(a.Cleanup)
	t.Cleanup(b.Cleanup)

	server, err := b.Bind(0, 9002, SocketOptions{Family: wire.FamilyIPv6})
	require.NoError(t, err)
	client, err := a.Bind(0, 0, SocketOptions{Family: wire.FamilyIPv6})
	require.NoError(t, err)
	require.NoError(t, client.Connect(server.LocalAddr()))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if !b.NicRx(ctx, -1) {
				return
			}
			var ready []*Socket
			b.RxReady(&ready)
			if len(ready) > 0 {
				return
			}
		}
	}()

	var out arena.Queue
	a.AllocLen(wire.FamilyIPv6, &out, 4, 0, 0)
	require.NoError(t, client.Tx(&out))
	require.NoError(t, a.NicTx())

	<-done
	require.Equal(t, 1, a.neighbors.Len())
}

// buildUDPv4Frame assembles a complete Ethernet+IPv4+UDP frame addressed
// from src to dst, with a correct IPv4 header checksum and, unless
// corruptChecksum is set, a correct UDP checksum.
func buildUDPv4Frame(t *testing.T, srcMAC, dstMAC wire.EthAddr, src, dst [4]byte, srcPort, dstPort uint16, payload []byte, corruptChecksum bool) []byte {
	t.Helper()
	udpLen := wire.SizeUDPHeader + len(payload)
	frame := make([]byte, wire.SizeEthernetHeader+wire.SizeIPv4Header+udpLen)

	udpBuf := frame[wire.SizeEthernetHeader+wire.SizeIPv4Header:]
	udp := wire.UDPHeader{SourcePort: srcPort, DestPort: dstPort, Length: uint16(udpLen)}
	udp.Put(udpBuf[:wire.SizeUDPHeader])
	copy(udpBuf[wire.SizeUDPHeader:], payload)
	wire.FinishUDPChecksumV4(udpBuf, src, dst)
	if corruptChecksum {
		udpBuf[6] ^= 0xff
		udpBuf[7] ^= 0xff
	}

	ip := wire.IPv4Header{
		TotalLength: uint16(wire.SizeIPv4Header + udpLen),
		Flags:       wire.IPv4FlagDF,
		TTL:         wire.IPv4DefaultTTL,
		Protocol:    wire.ProtoUDP,
		Source:      src,
		Destination: dst,
	}
	ip.Put(frame[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv4Header])

	eth := wire.EthernetHeader{Destination: dstMAC, Source: srcMAC, Type: wire.EtherTypeIPv4}
	eth.Put(frame[0:wire.SizeEthernetHeader])
	return frame
}

// TestEngineDropsUDPv4BadChecksum exercises end-to-end scenario 5: a
// datagram with a corrupted UDP checksum is dropped by the real RX
// dispatch chain (handleBypassFrame -> handleIPv4 -> handleUDPv4) and
// never reaches the bound socket's RX queue.
func TestEngineDropsUDPv4BadChecksum(t *testing.T) {
	macA := wire.EthAddr{0x02, 0, 0, 0, 0, 0x1a}
	macB := wire.EthAddr{0x02, 0, 0, 0, 0, 0x1b}
	a, b, err := InitPipe(t.Name(), macA, macB, pipeIPv4Addrs(1), pipeIPv4Addrs(2), 64)
	require.NoError(t, err)
	t.Cleanup(a.Cleanup)
	t.Cleanup(b.Cleanup)

	server, err := b.Bind(0, 9101, SocketOptions{})
	require.NoError(t, err)

	frame := buildUDPv4Frame(t, macA, macB, [4]byte{192, 168, 1, 1}, [4]byte{192, 168, 1, 2}, 5555, 9101, []byte("payload"), true)
	b.handleBypassFrame(frame)

	var in arena.Queue
	server.Rx(&in)
	require.True(t, in.Empty(), "datagram with bad UDP checksum must not reach the socket")
}

// TestEngineDropsIPv4FragmentedPacket exercises end-to-end scenario 6: an
// IPv4 packet with a non-zero fragment offset is rejected by the real RX
// dispatch chain (handleBypassFrame -> handleIPv4 -> wire.ValidateIPv4),
// not just by wire's own unit tests.
func TestEngineDropsIPv4FragmentedPacket(t *testing.T) {
	macA := wire.EthAddr{0x02, 0, 0, 0, 0, 0x2a}
	macB := wire.EthAddr{0x02, 0, 0, 0, 0, 0x2b}
	a, b, err := InitPipe(t.Name(), macA, macB, pipeIPv4Addrs(1), pipeIPv4Addrs(2), 64)
	require.NoError(t, err)
	t.Cleanup(a.Cleanup)
	t.Cleanup(b.Cleanup)

	server, err := b.Bind(0, 9102, SocketOptions{})
	require.NoError(t, err)

	frame := buildUDPv4Frame(t, macA, macB, [4]byte{192, 168, 1, 1}, [4]byte{192, 168, 1, 2}, 5555, 9102, []byte("payload"), false)
	// Set a non-zero fragment offset and recompute the IPv4 header
	// checksum so the packet is rejected for fragmentation specifically,
	// not for a bad header checksum.
	ipBuf := frame[wire.SizeEthernetHeader : wire.SizeEthernetHeader+wire.SizeIPv4Header]
	ip := wire.DecodeIPv4Header(ipBuf)
	ip.Flags |= 1 // fragment offset = 1
	ip.Put(ipBuf)
	b.handleBypassFrame(frame)

	var in arena.Queue
	server.Rx(&in)
	require.True(t, in.Empty(), "fragmented datagram must not reach the socket")
}
