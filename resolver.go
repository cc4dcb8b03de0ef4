package warpcore

import (
	"time"

	"github.com/soypat/warpcore/wire"
)

// Query implements neighbor.Resolver: it emits an ARP request (IPv4) or an
// NDP neighbor solicitation (IPv6) for addr onto the wire,
// Only meaningful for the bypass backend — the OS backend never calls
// WhoHas, since the kernel resolves its own neighbors.
func (e *Engine) Query(addr wire.Addr) error {
	if e.driver == nil {
		return nil
	}
	buf := make([]byte, e.driver.MTU())
	var n int
	if addr.Is4() {
		n = e.buildARPRequest(buf, addr)
	} else {
		n = e.buildNeighborSolicitation(buf, addr)
	}
	if e.metrics != nil {
		e.metrics.IncNeighborQueries(e.name)
	}
	return e.driver.Send(buf[:n])
}

// PumpRX implements neighbor.Resolver: it services the receive path for up
// to timeout, giving an in-flight ARP/NDP reply a chance to land and
// update the neighbor table before WhoHas re-checks its cache.
func (e *Engine) PumpRX(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		select {
		case item := <-e.rxCh:
			e.dispatchRX(item)
		case <-time.After(remaining):
			return nil
		case <-e.closeCh:
			return nil
		}
	}
}
