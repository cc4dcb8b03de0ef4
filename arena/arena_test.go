package arena

import (
	"testing"

	"github.com/soypat/warpcore/wire"
	"github.com/stretchr/testify/require"
)

func TestAllocIOVReservesHeaderSpace(t *testing.T) {
	a := New(4, 2048)
	v := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	require.NotNil(t, v)
	require.Equal(t, int(2048-HeaderOffset(wire.FamilyIPv4)), len(v.Buf))
	require.Equal(t, v.Len, uint16(len(v.Buf)))
	require.Equal(t, Stats{Total: 4, Free: 3, InUse: 1}, a.Stats())
}

func TestAllocIOVExhaustion(t *testing.T) {
	a := New(2, 512)
	v1 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	v2 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	require.NotNil(t, v1)
	require.NotNil(t, v2)
	require.Nil(t, a.AllocIOV(wire.FamilyIPv4, 0, 0))
	require.Equal(t, 0, a.Stats().Free)
}

func TestFreeIOVReturnsToHeadOfFreeList(t *testing.T) {
	a := New(2, 512)
	v1 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	idx1 := v1.Idx
	a.FreeIOV(v1)

	v2 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	require.Equal(t, idx1, v2.Idx, "LIFO free list must hand back the most recently freed buffer first")
}

func TestAllocLenChainsVectorsToExactLength(t *testing.T) {
	a := New(8, 128)
	maxPer := uint16(64 - HeaderOffset(wire.FamilyIPv4))
	var q Queue
	a.AllocLen(wire.FamilyIPv4, &q, 150, maxPer, 0)
	require.Equal(t, uint(150), QueuePayloadLen(&q))
	require.Greater(t, q.Len(), 1)
}

func TestAllocLenPartialOnExhaustion(t *testing.T) {
	a := New(2, 128)
	maxPer := uint16(32)
	var q Queue
	a.AllocLen(wire.FamilyIPv4, &q, 1000, maxPer, 0)
	require.Equal(t, 2, q.Len())
	require.Less(t, QueuePayloadLen(&q), uint(1000))
}

func TestAllocCntStopsOnExhaustion(t *testing.T) {
	a := New(3, 128)
	var q Queue
	a.AllocCnt(wire.FamilyIPv4, &q, 5, 0, 0)
	require.Equal(t, 3, q.Len())
}

func TestQueueConcatPreservesOrder(t *testing.T) {
	a := New(4, 128)
	var q1, q2 Queue
	v1 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	v2 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	v3 := a.AllocIOV(wire.FamilyIPv4, 0, 0)
	q1.PushTail(v1)
	q1.PushTail(v2)
	q2.PushTail(v3)
	q1.Concat(&q2)

	var order []uint32
	q1.Each(func(v *Vector) { order = append(order, v.Idx) })
	require.Equal(t, []uint32{v1.Idx, v2.Idx, v3.Idx}, order)
	require.True(t, q2.Empty())
}

func TestFreeReturnsWholeQueue(t *testing.T) {
	a := New(4, 128)
	var q Queue
	a.AllocCnt(wire.FamilyIPv4, &q, 4, 0, 0)
	require.Equal(t, 0, a.Stats().Free)
	a.Free(&q)
	require.Equal(t, 4, a.Stats().Free)
	require.True(t, q.Empty())
}

func TestVectorByIndexOutOfRangePanics(t *testing.T) {
	a := New(2, 128)
	require.Panics(t, func() { a.VectorByIndex(99) })
}

func TestNewRejectsInvalidSize(t *testing.T) {
	require.Panics(t, func() { New(0, 128) })
	require.Panics(t, func() { New(2, 0) })
}
