package warpcore

import (
	"context"
	"testing"
	"time"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/ifaddr"
	"github.com/soypat/warpcore/wire"
	"github.com/stretchr/testify/require"
)

func loopbackIPv4Info(name string) (ifaddr.Info, error) {
	return ifaddr.Info{
		Name: name,
		MAC:  wire.EthAddr{0x02, 0, 0, 0, 0, 1},
		MTU:  1500,
		Addrs: []wire.IfaceAddr{
			{Addr: wire.AddrFromIPv4(127, 0, 0, 1), PrefixLen: 8},
		},
	}, nil
}

func loopbackIPv6Info(name string) (ifaddr.Info, error) {
	var b [16]byte
	b[15] = 1
	return ifaddr.Info{
		Name:  name,
		MAC:   wire.EthAddr{0x02, 0, 0, 0, 0, 2},
		MTU:   1500,
		Addrs: []wire.IfaceAddr{{Addr: wire.AddrFromIPv6(b), PrefixLen: 128}},
	}, nil
}

func newTestOssockEngine(t *testing.T, ifname string) *Engine {
	t.Helper()
	e, err := Init(ifname, 16, withIfaceInfo(loopbackIPv4Info))
	require.NoError(t, err)
	t.Cleanup(e.Cleanup)
	return e
}

func TestInitRejectsDuplicateInterfaceName(t *testing.T) {
	e := newTestOssockEngine(t, "dup-if-test")
	_, err := Init("dup-if-test", 16, withIfaceInfo(loopbackIPv4Info))
	require.ErrorIs(t, err, ErrDuplicateInterface)
	_ = e
}

func TestCleanupFreesInterfaceNameForReuse(t *testing.T) {
	e, err := Init("reuse-if-test", 16, withIfaceInfo(loopbackIPv4Info))
	require.NoError(t, err)
	e.Cleanup()

	e2, err := Init("reuse-if-test", 16, withIfaceInfo(loopbackIPv4Info))
	require.NoError(t, err)
	e2.Cleanup()
}

func TestBindPortZeroAssignsEphemeralPort(t *testing.T) {
	e := newTestOssockEngine(t, "ephemeral-port-test")
	s, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	defer s.Close()
	require.GreaterOrEqual(t, s.LocalAddr().Port, uint16(1))
}

func TestBindRejectsOutOfRangeAddrIndex(t *testing.T) {
	e := newTestOssockEngine(t, "bad-addridx-test")
	_, err := e.Bind(5, 0, SocketOptions{})
	require.ErrorIs(t, err, ErrNoSuchAddrIndex)
}

func TestOperationsAfterCleanupReturnErrEngineClosed(t *testing.T) {
	e, err := Init("closed-engine-test", 16, withIfaceInfo(loopbackIPv4Info))
	require.NoError(t, err)
	e.Cleanup()

	_, err = e.Bind(0, 0, SocketOptions{})
	require.ErrorIs(t, err, ErrEngineClosed)
	require.ErrorIs(t, e.NicTx(), ErrEngineClosed)
}

// TestEchoRoundTripOverOssockLoopback exercises end-to-end scenario 1: a
// datagram sent from one bound socket to another on loopback is received
// intact on the peer.
func TestEchoRoundTripOverOssockLoopback(t *testing.T) {
	e := newTestOssockEngine(t, "echo-loopback-test")

	server, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	client, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)

	require.NoError(t, client.Connect(server.LocalAddr()))

	var out arena.Queue
	e.AllocLen(wire.FamilyIPv4, &out, 13, 0, 0)
	require.False(t, out.Empty())
	out.Each(func(v *arena.Vector) { copy(v.Payload(), "hello, world!") })

	require.NoError(t, client.Tx(&out))
	require.NoError(t, e.NicTx())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var in arena.Queue
	for in.Empty() {
		if !e.NicRx(ctx, -1) {
			require.NoError(t, ctx.Err(), "timed out waiting for echo datagram")
		}
		server.Rx(&in)
	}

	var got string
	in.Each(func(v *arena.Vector) { got += string(v.Payload()) })
	require.Equal(t, "hello, world!", got)
	require.Equal(t, client.LocalAddr().Port, func() uint16 {
		var p uint16
		in.Each(func(v *arena.Vector) { p = v.SAddr.Port })
		return p
	}())
	e.Free(&in)
}

// TestPortUnreachableDropsSilently exercises end-to-end scenario 2: a
// datagram addressed to a port nobody bound never shows up on any socket
// and the engine does not panic.
func TestPortUnreachableDropsSilently(t *testing.T) {
	e := newTestOssockEngine(t, "port-unreachable-test")
	server, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)

	client, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	unreachable := wire.SockAddr{IP: server.LocalAddr().IP, Port: server.LocalAddr().Port + 1}
	require.NoError(t, client.Connect(unreachable))

	var out arena.Queue
	e.AllocLen(wire.FamilyIPv4, &out, 4, 0, 0)
	require.NoError(t, client.Tx(&out))
	require.NoError(t, e.NicTx())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	for e.NicRx(ctx, 50*time.Millisecond) {
	}

	var in arena.Queue
	server.Rx(&in)
	require.True(t, in.Empty())
}

func TestRxReadyOnlyReportsSocketsWithQueuedData(t *testing.T) {
	e := newTestOssockEngine(t, "rxready-test")
	a, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	b, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)

	var out []*Socket
	e.RxReady(&out)
	require.Empty(t, out)

	_ = a
	_ = b
}

func TestCloseRemovesSocketFromOpenSocks(t *testing.T) {
	e := newTestOssockEngine(t, "close-removes-test")
	s, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	require.Len(t, e.openSocks, 1)
	s.Close()
	require.Empty(t, e.openSocks)
}
