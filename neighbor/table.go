// Package neighbor implements a link-layer address cache: a map from
// protocol address to Ethernet MAC, populated by observed ARP/NDP traffic
// and consulted (and, on miss, actively resolved) before any frame can be
// put on the wire.
package neighbor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/warpcore/wire"
)

// ErrResolutionTimeout is returned by WhoHas when ctx is cancelled before an
// address resolves.
var ErrResolutionTimeout = errors.New("neighbor: resolution timed out")

// Resolver is implemented by the engine so the table can drive address
// resolution without importing the engine package: Query emits an ARP
// request (IPv4) or an NDP neighbor solicitation (IPv6) for addr, and
// PumpRX services the receive path for up to timeout so an in-flight
// reply gets a chance to land before the next retry.
type Resolver interface {
	Query(addr wire.Addr) error
	PumpRX(timeout time.Duration) error
}

// Table is a single engine's neighbor cache. Like the rest of engine state
// it is owned by one cooperative goroutine and carries no internal lock.
type Table struct {
	entries map[wire.Addr]wire.EthAddr
	log     *slog.Logger
}

// New returns an empty neighbor table. A nil logger falls back to
// slog.Default().
func New(log *slog.Logger) *Table {
	if log == nil {
		log = slog.Default()
	}
	return &Table{entries: make(map[wire.Addr]wire.EthAddr), log: log}
}

// Update records that addr is reachable at mac, overwriting any previous
// entry. Called whenever an ARP reply/request or NDP advertisement carrying
// addr's link-layer address is observed.
func (t *Table) Update(addr wire.Addr, mac wire.EthAddr) {
	t.entries[addr] = mac
	t.log.Debug("neighbor cache entry", "addr", addr.String(), "mac", mac.String())
}

// Lookup returns the cached MAC for addr without attempting resolution.
func (t *Table) Lookup(addr wire.Addr) (wire.EthAddr, bool) {
	mac, ok := t.entries[addr]
	return mac, ok
}

// Delete removes any cache entry for addr.
func (t *Table) Delete(addr wire.Addr) {
	delete(t.entries, addr)
}

// Len reports the number of cached entries.
func (t *Table) Len() int { return len(t.entries) }

// WhoHas returns the Ethernet MAC address for addr, resolving it via r if
// it is not already cached. Rather than looping forever, it returns
// ErrResolutionTimeout once ctx is done — see the Open Questions log in
// DESIGN.md.
func (t *Table) WhoHas(ctx context.Context, addr wire.Addr, r Resolver) (wire.EthAddr, error) {
	if mac, ok := t.Lookup(addr); ok {
		return mac, nil
	}
	for {
		select {
		case <-ctx.Done():
			return wire.EthAddr{}, ErrResolutionTimeout
		default:
		}

		t.log.Info("no neighbor entry, sending query", "addr", addr.String())
		if err := r.Query(addr); err != nil {
			return wire.EthAddr{}, err
		}
		if err := r.PumpRX(time.Second); err != nil {
			return wire.EthAddr{}, err
		}
		if mac, ok := t.Lookup(addr); ok {
			return mac, nil
		}
	}
}
