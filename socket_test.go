package warpcore

import (
	"testing"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/wire"
	"github.com/stretchr/testify/require"
)

func TestMaxUDPPayloadSubtractsHeaders(t *testing.T) {
	e := newTestOssockEngine(t, "maxpayload-test")
	s, err := e.Bind(0, 0, SocketOptions{Family: wire.FamilyIPv4})
	require.NoError(t, err)
	defer s.Close()

	want := uint16(int(e.mtu) - wire.SizeIPv4Header - wire.SizeUDPHeader)
	require.Equal(t, want, s.MaxUDPPayload())
}

func TestTxWithoutConnectOrExplicitDestFails(t *testing.T) {
	e := newTestOssockEngine(t, "tx-unconnected-test")
	s, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	defer s.Close()

	var q arena.Queue
	e.AllocLen(wire.FamilyIPv4, &q, 8, 0, 0)
	require.ErrorIs(t, s.Tx(&q), ErrNotConnected)
}

func TestConnectRejectsMismatchedFamily(t *testing.T) {
	e := newTestOssockEngine(t, "family-mismatch-test")
	s, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	defer s.Close()

	var v6 [16]byte
	v6[15] = 2
	peer := wire.SockAddr{IP: wire.AddrFromIPv6(v6), Port: 9000}
	require.ErrorIs(t, s.Connect(peer), ErrFamilyMismatch)
}

func TestCloseFreesQueuedRXVectorsBackToArena(t *testing.T) {
	e := newTestOssockEngine(t, "close-frees-rx-test")
	s, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)

	before := e.arena.Stats().Free
	v := e.arena.AllocIOV(wire.FamilyIPv4, 4, 0)
	require.NotNil(t, v)
	s.sock.RX.PushTail(v)

	s.Close()
	require.Equal(t, before, e.arena.Stats().Free)
}

func TestSocketTxSendsExplicitDestinationWhenUnconnected(t *testing.T) {
	e := newTestOssockEngine(t, "explicit-dest-test")
	server, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	defer server.Close()
	client, err := e.Bind(0, 0, SocketOptions{})
	require.NoError(t, err)
	defer client.Close()

	v := e.arena.AllocIOV(wire.FamilyIPv4, 5, 0)
	require.NotNil(t, v)
	copy(v.Payload(), "howdy")
	v.SAddr = server.LocalAddr()

	var q arena.Queue
	q.PushTail(v)
	require.NoError(t, client.Tx(&q))
	require.NoError(t, e.NicTx())
}
