// Package arena implements a zero-copy packet-buffer pool: a fixed-count
// set of buffers identified by stable 32-bit indices, handed out and
// reclaimed through an intrusive, LIFO free list so that recently used
// buffers stay cache-warm.
package arena

import (
	"fmt"

	"github.com/soypat/warpcore/wire"
)

// HeaderOffset returns the number of bytes warpcore reserves in front of a
// vector's payload for the Ethernet+IP+UDP headers of address family af.
func HeaderOffset(af wire.Family) uint16 {
	switch af {
	case wire.FamilyIPv6:
		return wire.SizeEthernetHeader + wire.SizeIPv6Header + wire.SizeUDPHeader
	default:
		return wire.SizeEthernetHeader + wire.SizeIPv4Header + wire.SizeUDPHeader
	}
}

// Vector is a handle to one arena buffer: the unit of I/O exposed to
// applications. Base is immutable for the vector's lifetime and is a
// bijection with Idx; Buf is the current payload cursor, a sub-slice of
// Base, and Len bytes starting at Buf are the logical payload.
type Vector struct {
	Idx   uint32
	Base  []byte
	Buf   []byte
	Len   uint16
	Flags uint8 // DSCP+ECN byte
	TTL   uint8
	SAddr wire.SockAddr
	next  *Vector
}

// Payload returns the vector's current payload slice, Buf[:Len].
func (v *Vector) Payload() []byte { return v.Buf[:v.Len] }

// HeaderRoom returns the bytes of Base preceding Buf, available for a
// codec to write headers in place before transmission.
func (v *Vector) HeaderRoom() []byte { return v.Base[:len(v.Base)-len(v.Buf)] }

// Frame returns the full on-wire frame once headers have been written into
// HeaderRoom(): the trailing hdrLen bytes of HeaderRoom() plus the payload.
func (v *Vector) Frame(hdrLen int) []byte {
	start := len(v.Base) - len(v.Buf) - hdrLen
	return v.Base[start : len(v.Base)-len(v.Buf)+int(v.Len)]
}

func (v *Vector) reset() {
	v.Flags = 0
	v.TTL = 0
	v.SAddr = wire.SockAddr{}
	v.next = nil
}

// Queue is an intrusive singly-linked list of vectors modeling the
// free list, a per-socket RX queue, or a caller-owned batch — the three
// homes a vector may occupy. It owns whatever vectors are pushed onto
// it; a vector is never a member of two queues at once.
type Queue struct {
	head, tail *Vector
	n          int
}

// Len returns the number of vectors in the queue.
func (q *Queue) Len() int { return q.n }

// Empty reports whether the queue has no vectors.
func (q *Queue) Empty() bool { return q.n == 0 }

// PushTail appends v to the end of the queue (FIFO order), used by
// per-socket RX queues and caller-owned TX batches where arrival/submission
// order must be preserved.
func (q *Queue) PushTail(v *Vector) {
	v.next = nil
	if q.tail == nil {
		q.head, q.tail = v, v
	} else {
		q.tail.next = v
		q.tail = v
	}
	q.n++
}

// PushHead prepends v to the front of the queue (LIFO order), used by the
// arena's free list so recently-freed buffers are reused first.
func (q *Queue) PushHead(v *Vector) {
	v.next = q.head
	q.head = v
	if q.tail == nil {
		q.tail = v
	}
	q.n++
}

// PopHead removes and returns the vector at the front of the queue, or nil
// if the queue is empty.
func (q *Queue) PopHead() *Vector {
	v := q.head
	if v == nil {
		return nil
	}
	q.head = v.next
	if q.head == nil {
		q.tail = nil
	}
	v.next = nil
	q.n--
	return v
}

// Concat moves every vector from other onto the tail of q, emptying other.
func (q *Queue) Concat(other *Queue) {
	if other.head == nil {
		return
	}
	if q.tail == nil {
		q.head = other.head
	} else {
		q.tail.next = other.head
	}
	q.tail = other.tail
	q.n += other.n
	other.head, other.tail, other.n = nil, nil, 0
}

// Each calls fn for every vector currently in the queue, head to tail,
// without removing them.
func (q *Queue) Each(fn func(*Vector)) {
	for v := q.head; v != nil; v = v.next {
		fn(v)
	}
}

// Stats is a point-in-time snapshot of arena occupancy, exposed for the
// wmetrics gauge.
type Stats struct {
	Total int
	Free  int
	InUse int
}

// Arena is the fixed-size pool of packet buffers owned by one engine,
// created once at engine init and destroyed only at engine teardown. It
// is not safe for concurrent use — like the rest of the engine, it is
// owned by a single cooperative goroutine.
type Arena struct {
	mtu    uint16
	region []byte
	vecs   []Vector
	free   Queue
}

// New populates an arena with n buffers of size mtu bytes each, backed by a
// single contiguous n*mtu allocation, and inserts all of them into the free
// list. Panics if n or mtu is non-positive: a misconfigured arena is a
// construction-time programmer error, not a runtime condition to recover
// from.
func New(n int, mtu uint16) *Arena {
	if n <= 0 || mtu == 0 {
		panic(fmt.Sprintf("arena: invalid arena size n=%d mtu=%d", n, mtu))
	}
	a := &Arena{
		mtu:    mtu,
		region: make([]byte, n*int(mtu)),
		vecs:   make([]Vector, n),
	}
	for i := range a.vecs {
		v := &a.vecs[i]
		v.Idx = uint32(i)
		v.Base = a.region[i*int(mtu) : (i+1)*int(mtu) : (i+1)*int(mtu)]
		a.free.PushHead(v)
	}
	return a
}

// MTU returns the per-buffer backing-storage size.
func (a *Arena) MTU() uint16 { return a.mtu }

// Cap returns the total number of buffers the arena was created with.
func (a *Arena) Cap() int { return len(a.vecs) }

// VectorByIndex returns the vector with the given stable index. Panics if
// idx is out of range, since a caller holding an invalid index is itself a
// programmer error.
func (a *Arena) VectorByIndex(idx uint32) *Vector {
	if int(idx) >= len(a.vecs) {
		panic(fmt.Sprintf("arena: buffer index %d out of range [0,%d)", idx, len(a.vecs)))
	}
	return &a.vecs[idx]
}

// Stats reports current free/in-use buffer counts.
func (a *Arena) Stats() Stats {
	return Stats{Total: len(a.vecs), Free: a.free.Len(), InUse: len(a.vecs) - a.free.Len()}
}

// AllocIOV removes the head of the free list, points its payload cursor
// HeaderOffset(af)+off bytes into its backing storage, and sizes it to len
// bytes (or the remaining capacity, if len is zero). Returns nil when the
// free list is empty.
func (a *Arena) AllocIOV(af wire.Family, length, off uint16) *Vector {
	v := a.free.PopHead()
	if v == nil {
		return nil
	}
	v.reset()
	hdrSpace := HeaderOffset(af)
	start := int(off) + int(hdrSpace)
	if start > len(v.Base) {
		start = len(v.Base)
	}
	v.Buf = v.Base[start:]
	cap16 := uint16(len(v.Buf))
	if length == 0 || length > cap16 {
		v.Len = cap16
	} else {
		v.Len = length
	}
	return v
}

// AllocLen repeatedly calls AllocIOV, chaining vectors onto q until their
// combined payload equals nBytes, each buffer truncated to at most maxPer
// bytes (0 meaning "no limit beyond the MTU"); the final vector's length is
// adjusted down to hit nBytes exactly. If the free list empties mid-way the
// partial queue accumulated so far is left in q — callers must check
// q's total length against nBytes.
func (a *Arena) AllocLen(af wire.Family, q *Queue, nBytes uint, maxPer, off uint16) {
	needed := nBytes
	for needed > 0 {
		v := a.AllocIOV(af, maxPer, off)
		if v == nil {
			return
		}
		if uint(v.Len) > needed {
			v.Len = uint16(needed)
			needed = 0
		} else {
			needed -= uint(v.Len)
		}
		q.PushTail(v)
	}
}

// AllocCnt repeatedly calls AllocIOV, chaining count vectors of len bytes
// each (0 meaning "fill to capacity") onto q. Stops early, leaving a short
// queue, if the free list empties.
func (a *Arena) AllocCnt(af wire.Family, q *Queue, count uint, length, off uint16) {
	for i := uint(0); i < count; i++ {
		v := a.AllocIOV(af, length, off)
		if v == nil {
			return
		}
		q.PushTail(v)
	}
}

// QueuePayloadLen returns the total payload length, in bytes, of every
// vector in q.
func QueuePayloadLen(q *Queue) uint {
	var total uint
	q.Each(func(v *Vector) { total += uint(v.Len) })
	return total
}

// FreeIOV returns a single vector to the head of the free list. Panics if v
// still has a non-nil next pointer — a sign that it is still a member of
// another queue, which would corrupt both lists silently if allowed.
func (a *Arena) FreeIOV(v *Vector) {
	if v.next != nil {
		panic("arena: free_iov called on a vector still linked into a queue")
	}
	a.free.PushHead(v)
}

// Free concatenates every vector in q onto the free list head, emptying q.
func (a *Arena) Free(q *Queue) {
	for v := q.PopHead(); v != nil; v = q.PopHead() {
		a.free.PushHead(v)
	}
}
