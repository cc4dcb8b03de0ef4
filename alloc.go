package warpcore

import (
	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/wire"
)

// AllocIOV draws a single vector sized length bytes (0 meaning "fill to
// capacity"), offset off bytes past the family's header reservation, or
// nil if the arena is exhausted.
func (e *Engine) AllocIOV(af wire.Family, length, off uint16) *arena.Vector {
	v := e.arena.AllocIOV(af, length, off)
	if e.metrics != nil {
		st := e.arena.Stats()
		e.metrics.SetArenaStats(e.name, st.Free, st.InUse)
	}
	return v
}

// AllocLen fills q with vectors totaling nBytes, each truncated to at most
// maxPer bytes, leaving a short queue if the arena runs out.
func (e *Engine) AllocLen(af wire.Family, q *arena.Queue, nBytes uint, maxPer, off uint16) {
	e.arena.AllocLen(af, q, nBytes, maxPer, off)
	if e.metrics != nil {
		st := e.arena.Stats()
		e.metrics.SetArenaStats(e.name, st.Free, st.InUse)
	}
}

// AllocCnt fills q with count vectors of length bytes each, stopping early
// if the arena runs out.
func (e *Engine) AllocCnt(af wire.Family, q *arena.Queue, count uint, length, off uint16) {
	e.arena.AllocCnt(af, q, count, length, off)
	if e.metrics != nil {
		st := e.arena.Stats()
		e.metrics.SetArenaStats(e.name, st.Free, st.InUse)
	}
}

// Free returns every vector in q to the arena, emptying q.
func (e *Engine) Free(q *arena.Queue) {
	e.arena.Free(q)
	if e.metrics != nil {
		st := e.arena.Stats()
		e.metrics.SetArenaStats(e.name, st.Free, st.InUse)
	}
}

// FreeIOV returns a single vector to the arena.
func (e *Engine) FreeIOV(v *arena.Vector) {
	e.arena.FreeIOV(v)
	if e.metrics != nil {
		st := e.arena.Stats()
		e.metrics.SetArenaStats(e.name, st.Free, st.InUse)
	}
}
