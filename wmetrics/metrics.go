// Package wmetrics exposes Prometheus instrumentation for a running engine:
// arena occupancy, socket counts, packet tx/rx/drop volumes, and neighbor
// resolution activity.
package wmetrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "warpcore"
	subsystem = "engine"
)

const labelIface = "iface"

// Collector holds every Prometheus metric an engine reports.
type Collector struct {
	// ArenaFree tracks the current number of free buffers in the arena.
	ArenaFree *prometheus.GaugeVec

	// ArenaInUse tracks the current number of buffers checked out of the
	// arena.
	ArenaInUse *prometheus.GaugeVec

	// Sockets tracks the number of currently registered sockets (bound or
	// connected).
	Sockets *prometheus.GaugeVec

	// PacketsTX counts frames successfully handed to the backend driver.
	PacketsTX *prometheus.CounterVec

	// PacketsRX counts frames successfully pulled off the backend driver.
	PacketsRX *prometheus.CounterVec

	// PacketsDropped counts frames discarded by validation, demux miss, or
	// buffer exhaustion.
	PacketsDropped *prometheus.CounterVec

	// NeighborQueries counts ARP/NDP resolution queries emitted.
	NeighborQueries *prometheus.CounterVec

	// PortExhausted counts Connect calls that failed with
	// socktab.ErrPortExhausted.
	PortExhausted *prometheus.CounterVec
}

// NewCollector builds a Collector and registers it against reg. A nil reg
// registers against prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := newMetrics()
	reg.MustRegister(
		c.ArenaFree,
		c.ArenaInUse,
		c.Sockets,
		c.PacketsTX,
		c.PacketsRX,
		c.PacketsDropped,
		c.NeighborQueries,
		c.PortExhausted,
	)
	return c
}

func newMetrics() *Collector {
	ifaceLabels := []string{labelIface}
	dropLabels := []string{labelIface, "reason"}

	return &Collector{
		ArenaFree: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "arena_free_buffers",
			Help:      "Number of buffers currently on the arena free list.",
		}, ifaceLabels),

		ArenaInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "arena_inuse_buffers",
			Help:      "Number of buffers currently checked out of the arena.",
		}, ifaceLabels),

		Sockets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sockets",
			Help:      "Number of currently registered sockets.",
		}, ifaceLabels),

		PacketsTX: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_tx_total",
			Help:      "Total frames handed to the backend driver for transmission.",
		}, ifaceLabels),

		PacketsRX: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_rx_total",
			Help:      "Total frames pulled off the backend driver.",
		}, ifaceLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total frames discarded, labeled by drop reason.",
		}, dropLabels),

		NeighborQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "neighbor_queries_total",
			Help:      "Total ARP/NDP resolution queries emitted.",
		}, ifaceLabels),

		PortExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "port_exhausted_total",
			Help:      "Total Connect calls that failed to find a free ephemeral port.",
		}, ifaceLabels),
	}
}

// SetArenaStats updates the arena gauges for iface.
func (c *Collector) SetArenaStats(iface string, free, inUse int) {
	c.ArenaFree.WithLabelValues(iface).Set(float64(free))
	c.ArenaInUse.WithLabelValues(iface).Set(float64(inUse))
}

// SetSocketCount updates the socket gauge for iface.
func (c *Collector) SetSocketCount(iface string, n int) {
	c.Sockets.WithLabelValues(iface).Set(float64(n))
}

// IncPacketsTX increments the transmitted-frame counter for iface.
func (c *Collector) IncPacketsTX(iface string) {
	c.PacketsTX.WithLabelValues(iface).Inc()
}

// IncPacketsRX increments the received-frame counter for iface.
func (c *Collector) IncPacketsRX(iface string) {
	c.PacketsRX.WithLabelValues(iface).Inc()
}

// IncPacketsDropped increments the dropped-frame counter for iface, labeled
// with reason (e.g. "bad-udp-checksum", "arena-exhausted", "unclaimed").
func (c *Collector) IncPacketsDropped(iface, reason string) {
	c.PacketsDropped.WithLabelValues(iface, reason).Inc()
}

// IncNeighborQueries increments the neighbor-resolution-query counter for
// iface.
func (c *Collector) IncNeighborQueries(iface string) {
	c.NeighborQueries.WithLabelValues(iface).Inc()
}

// IncPortExhausted increments the port-exhaustion counter for iface.
func (c *Collector) IncPortExhausted(iface string) {
	c.PortExhausted.WithLabelValues(iface).Inc()
}
