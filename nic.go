package warpcore

import (
	"fmt"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/backend/ossock"
)

// NicTx flushes every vector queued by a Tx call. Bypass-backed entries are
// framed and sent one at a time as raw Ethernet frames (resolving the
// next-hop MAC as needed); ossock-backed entries are grouped by their
// originating conn and written in batches of up to ossock.MaxBatchSize via
// WriteBatch, one sendmmsg-equivalent syscall per batch instead of one
// syscall per datagram. No-op when nothing is pending.
func (e *Engine) NicTx() error {
	if e.closed {
		return ErrEngineClosed
	}
	pending := e.txPending
	e.txPending = nil

	for i := 0; i < len(pending); {
		p := pending[i]
		if e.driver != nil {
			err := e.bypassTransmit(p)
			e.arena.FreeIOV(p.v)
			if err != nil {
				if e.metrics != nil {
					e.metrics.IncPacketsDropped(e.name, "tx-error")
				}
				return fmt.Errorf("warpcore: nic_tx: %w", err)
			}
			if e.metrics != nil {
				e.metrics.IncPacketsTX(e.name)
			}
			i++
			continue
		}
		if !e.ossock || p.conn == nil {
			e.arena.FreeIOV(p.v)
			if e.metrics != nil {
				e.metrics.IncPacketsDropped(e.name, "tx-error")
			}
			return fmt.Errorf("warpcore: nic_tx: %w", ErrNoBackend)
		}

		j := i
		vecs := make([]*arena.Vector, 0, ossock.MaxBatchSize)
		batch := make([]ossock.OutPacket, 0, ossock.MaxBatchSize)
		for j < len(pending) && len(batch) < ossock.MaxBatchSize && pending[j].conn == p.conn {
			batch = append(batch, ossock.OutPacket{
				Buf:     pending[j].v.Payload(),
				Dst:     addrPortFromSockAddr(pending[j].dst),
				DSCPECN: pending[j].v.Flags,
			})
			vecs = append(vecs, pending[j].v)
			j++
		}

		n, err := p.conn.WriteBatch(batch)
		for _, v := range vecs {
			e.arena.FreeIOV(v)
		}
		if e.metrics != nil {
			for k := 0; k < n; k++ {
				e.metrics.IncPacketsTX(e.name)
			}
		}
		if err != nil {
			if e.metrics != nil {
				e.metrics.IncPacketsDropped(e.name, "tx-error")
			}
			return fmt.Errorf("warpcore: nic_tx: ossock write batch: %w", err)
		}
		i = j
	}
	return nil
}
