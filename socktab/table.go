// Package socktab implements a four-tuple socket demultiplexer: a lookup
// structure mapping a (local, remote) address pair to the socket handling
// it, with a bound-only fallback for unconnected sockets and a bounded
// random-port retry loop on connect.
package socktab

import (
	"errors"
	"log/slog"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/wire"
)

// connectRerollAttempts bounds the number of times Connect will draw a new
// ephemeral source port before giving up, mirroring the netmap backend's
// "uint8_t n = 200" reroll budget.
const connectRerollAttempts = 200

// ErrPortInUse is returned by Bind when the requested four-tuple (as a
// bound-only entry) is already occupied.
var ErrPortInUse = errors.New("socktab: local port already bound")

// ErrPortExhausted is returned by Connect when no ephemeral source port
// could be found that does not collide with an existing four-tuple after
// connectRerollAttempts tries. An explicit sentinel error rather than a
// bare boolean keeps exhaustion from being mistaken for success. See
// DESIGN.md's Open Questions log.
var ErrPortExhausted = errors.New("socktab: no local port available after repeated attempts")

// PortAllocator draws a pseudo-random ephemeral port number, network byte
// order irrelevant — socktab only uses it as an opaque uint16 key.
type PortAllocator interface {
	NextPort() uint16
}

// Socket is the per-flow state socktab indexes by four-tuple. Its RX field
// is the FIFO queue of vectors delivered to this socket and not yet
// retrieved by the application.
type Socket struct {
	Local  wire.SockAddr
	Remote wire.SockAddr // zero value: unconnected, "bound-only" socket
	RX     arena.Queue
}

// Connected reports whether s has a non-zero remote endpoint.
func (s *Socket) Connected() bool { return !s.Remote.IsZero() }

func (s *Socket) tuple() wire.FourTuple {
	return wire.FourTuple{Local: s.Local, Remote: s.Remote}
}

// Table is the engine-wide socket map. Like the arena and neighbor table,
// it is owned by a single cooperative goroutine and carries no lock.
type Table struct {
	byTuple map[wire.FourTuple]*Socket
	log     *slog.Logger
}

// New returns an empty socket table. A nil logger falls back to
// slog.Default().
func New(log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	return &Table{byTuple: make(map[wire.FourTuple]*Socket), log: log}
}

// Get returns the socket registered for the exact (local, remote) pair, or
// nil.
func (t *Table) Get(local, remote wire.SockAddr) *Socket {
	return t.byTuple[wire.FourTuple{Local: local, Remote: remote}]
}

// Bind registers a new bound-only (unconnected) socket at local, drawing a
// port from alloc if local.Port is zero. Returns ErrPortInUse if the
// resulting four-tuple is already registered.
func (t *Table) Bind(local wire.SockAddr, alloc PortAllocator) (*Socket, error) {
	if local.Port == 0 {
		local.Port = alloc.NextPort()
	}
	if s := t.Get(local, wire.SockAddr{}); s != nil {
		return nil, ErrPortInUse
	}
	s := &Socket{Local: local}
	t.byTuple[s.tuple()] = s
	t.log.Info("socket bound", "local", local.String())
	return s, nil
}

// Connect transitions a bound-only socket to a connected one addressing
// remote, rerolling the local ephemeral port up to connectRerollAttempts
// times if the resulting four-tuple collides with an existing socket.
// Returns ErrPortExhausted if every attempt collided.
func (t *Table) Connect(s *Socket, remote wire.SockAddr, alloc PortAllocator) error {
	delete(t.byTuple, s.tuple())
	prior := s.Local

	for attempt := 0; attempt < connectRerollAttempts; attempt++ {
		candidate := wire.FourTuple{Local: s.Local, Remote: remote}
		if _, taken := t.byTuple[candidate]; !taken {
			s.Remote = remote
			t.byTuple[candidate] = s
			t.log.Debug("socket connected", "local", s.Local.String(), "remote", remote.String())
			return nil
		}
		s.Local.Port = alloc.NextPort()
	}
	// restore the socket's prior bound-only registration before failing
	s.Local = prior
	t.byTuple[s.tuple()] = s
	return ErrPortExhausted
}

// Close removes s from the table. It does not free s's buffered RX
// vectors — the caller must return those to the arena first.
func (t *Table) Close(s *Socket) {
	delete(t.byTuple, s.tuple())
}

// Dispatch delivers v to the socket matching src/dst via a two-step
// rule: first the fully connected four-tuple (local=dst, remote=src),
// then, on miss, the bound-only tuple (local=dst). Returns false if no
// socket claims the packet, in which case the caller is expected to emit
// an ICMP port-unreachable.
func (t *Table) Dispatch(local, remote wire.SockAddr, v *arena.Vector) bool {
	if s := t.byTuple[(wire.FourTuple{Local: local, Remote: remote})]; s != nil {
		s.RX.PushTail(v)
		return true
	}
	if s := t.byTuple[(wire.FourTuple{Local: local})]; s != nil {
		s.RX.PushTail(v)
		return true
	}
	return false
}

// Len returns the number of registered sockets.
func (t *Table) Len() int { return len(t.byTuple) }
