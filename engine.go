// Package warpcore is a userspace UDP networking engine with two
// interchangeable transports: a kernel-bypass backend (package
// backend/bypass) that frames and parses Ethernet/ARP/NDP/IPv4/IPv6/UDP by
// hand over a TAP device or an in-process pipe, and an OS-socket backend
// (package backend/ossock) that hands framing to the kernel and exposes its
// TTL/DSCP-ECN ancillary data instead.
//
// An *Engine is not safe for concurrent use. Every operation except
// NicRx's internal wait is expected to run on a single cooperative
// goroutine; the arena, neighbor table and socket table carry no
// internal lock.
package warpcore

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/backend/bypass"
	"github.com/soypat/warpcore/backend/ossock"
	"github.com/soypat/warpcore/ifaddr"
	"github.com/soypat/warpcore/logctl"
	"github.com/soypat/warpcore/neighbor"
	"github.com/soypat/warpcore/rnd"
	"github.com/soypat/warpcore/socktab"
	"github.com/soypat/warpcore/wire"
	"github.com/soypat/warpcore/wmetrics"
)

var (
	registryMu sync.Mutex
	registry   = make(map[string]struct{})
)

// Option configures an Engine at construction time. Every Option has a
// sane default so callers normally only need Init's required parameters.
type Option func(*engineConfig)

type engineConfig struct {
	log        *logctl.Logger
	metrics    *wmetrics.Collector
	ifaceInfo  func(name string) (ifaddr.Info, error)
	numBufs    int
	mtu        uint16
	nextHop    wire.Addr
	backendTap bool
}

// WithLogger overrides the engine's structured logger. The default logs to
// stderr at info level.
func WithLogger(l *logctl.Logger) Option {
	return func(c *engineConfig) { c.log = l }
}

// WithMetrics attaches a Prometheus collector. Without it the engine
// records no metrics.
func WithMetrics(m *wmetrics.Collector) Option {
	return func(c *engineConfig) { c.metrics = m }
}

// WithNextHop sets a default-gateway address used when a destination is not
// covered by any of the engine's local prefixes.
func WithNextHop(addr netip.Addr) Option {
	return func(c *engineConfig) { c.nextHop = wire.AddrFromNetip(addr) }
}

// WithTapBackend selects the kernel-bypass TAP-device transport (package
// backend/bypass) instead of the default OS-socket transport for Init.
// Ignored by InitPipe, which always uses an in-process pipe pair.
func WithTapBackend() Option {
	return func(c *engineConfig) { c.backendTap = true }
}

// withIfaceInfo overrides interface discovery, for tests that cannot rely
// on a real NIC being present.
func withIfaceInfo(f func(name string) (ifaddr.Info, error)) Option {
	return func(c *engineConfig) { c.ifaceInfo = f }
}

func defaultConfig() engineConfig {
	return engineConfig{
		ifaceInfo: ifaddr.Lookup,
		numBufs:   1024,
		mtu:       1500,
	}
}

// Engine is the root handle: one buffer arena, one neighbor cache, one
// socket table, and one transport, all discovered or allocated at Init.
type Engine struct {
	name    string
	log     *logctl.Logger
	metrics *wmetrics.Collector

	mac     wire.EthAddr
	addrs   []wire.IfaceAddr
	nextHop wire.Addr
	mtu     uint16

	arena     *arena.Arena
	neighbors *neighbor.Table
	sockets   *socktab.Table
	rnd       *rnd.Source

	driver bypass.Driver // non-nil in bypass mode
	ossock bool          // true: OS-socket mode, one ossock.Conn per bound Socket
	ifname string        // interface name, used by each Bind's SO_BINDTODEVICE in ossock mode

	rxCh    chan rxItem
	closeCh chan struct{}
	closed  bool

	txPending []pendingTX
	openSocks []*Socket
}

// pendingTX pairs a vector queued for transmission with the source/
// destination addresses its socket supplied at Tx time — kept alongside
// the vector rather than folded into arena.Vector.SAddr (which NicRx reuses
// for the received source address) so NicTx can still frame the packet
// correctly after the vector leaves its socket's Tx call.
type pendingTX struct {
	local, dst   wire.SockAddr
	v            *arena.Vector
	conn         ossock.Conn // set in ossock mode, the originating socket's own conn
	zeroChecksum bool        // skip UDP checksum computation, per SocketOptions.ZeroUDPChecksum
}

// rxItem is one unparsed arrival handed from a backend's reader goroutine
// to NicRx. local identifies which Socket's own ossock.Conn it arrived on;
// zero-valued (and ignored) in bypass mode, where the frame itself carries
// addressing that handleBypassFrame decodes.
type rxItem struct {
	data  []byte
	meta  ossock.PacketMeta
	local wire.SockAddr
}

// Init discovers ifname's addresses via the OS (or the override installed
// with an internal test option), allocates an nbufs-buffer arena, and opens
// a transport: the OS-socket backend by default, or the TAP-device
// kernel-bypass backend if WithTapBackend is given. It refuses a second
// Init on the same interface name, returning ErrDuplicateInterface — use
// InitPipe for a loopback pair instead.
func Init(ifname string, nbufs int, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	if nbufs > 0 {
		cfg.numBufs = nbufs
	}
	for _, o := range opts {
		o(&cfg)
	}

	registryMu.Lock()
	if _, taken := registry[ifname]; taken {
		registryMu.Unlock()
		return nil, ErrDuplicateInterface
	}
	registry[ifname] = struct{}{}
	registryMu.Unlock()

	e, err := newEngine(ifname, cfg)
	if err != nil {
		registryMu.Lock()
		delete(registry, ifname)
		registryMu.Unlock()
		return nil, err
	}

	info, err := cfg.ifaceInfo(ifname)
	if err != nil {
		e.unregister()
		return nil, fmt.Errorf("warpcore: init %s: %w", ifname, err)
	}
	e.mac = info.MAC
	e.addrs = make([]wire.IfaceAddr, len(info.Addrs))
	copy(e.addrs, info.Addrs)
	if cfg.mtu == 0 && info.MTU > 0 {
		e.mtu = uint16(info.MTU)
	}

	if cfg.backendTap {
		drv, err := bypass.NewTapDriver(ifname, int(e.mtu))
		if err != nil {
			e.unregister()
			return nil, fmt.Errorf("warpcore: open tap %s: %w", ifname, err)
		}
		e.driver = drv
		e.arena = arena.New(cfg.numBufs, e.mtu)
		go e.bypassRxPump()
	} else {
		if _, ok := primaryBindAddr(e.addrs); !ok {
			e.unregister()
			return nil, fmt.Errorf("warpcore: %s has no usable address to bind", ifname)
		}
		e.ossock = true
		e.ifname = ifname
		e.arena = arena.New(cfg.numBufs, e.mtu)
		// no reader goroutine yet: each Bind opens its own ossock.Conn and
		// spawns its own reader, since a UDP socket is inherently bound to
		// one local port.
	}

	return e, nil
}

// InitPipe builds two in-process engines connected by a net.Pipe-backed
// bypass.Driver pair, bypassing interface discovery and the duplicate-
// interface registry entirely — the explicit way to get a loopback pair
// for tests, rather than inferring pipe mode from a magic interface name.
func InitPipe(name string, mac0, mac1 wire.EthAddr, addrs0, addrs1 []wire.IfaceAddr, nbufs int, opts ...Option) (a, b *Engine, err error) {
	cfg := defaultConfig()
	if nbufs > 0 {
		cfg.numBufs = nbufs
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.mtu == 0 {
		cfg.mtu = 1500
	}

	left, right := bypass.NewPipeDriverPair(name, int(cfg.mtu))

	ea, err := newEngine(name+"-left", cfg)
	if err != nil {
		return nil, nil, err
	}
	ea.mac = mac0
	ea.addrs = addrs0
	ea.driver = left
	ea.arena = arena.New(cfg.numBufs, cfg.mtu)

	eb, err := newEngine(name+"-right", cfg)
	if err != nil {
		ea.unregister()
		return nil, nil, err
	}
	eb.mac = mac1
	eb.addrs = addrs1
	eb.driver = right
	eb.arena = arena.New(cfg.numBufs, cfg.mtu)

	go ea.bypassRxPump()
	go eb.bypassRxPump()
	return ea, eb, nil
}

func newEngine(name string, cfg engineConfig) (*Engine, error) {
	log := cfg.log
	if log == nil {
		log = logctl.New(nil)
	}
	mtu := cfg.mtu
	if mtu == 0 {
		mtu = 1500
	}
	return &Engine{
		name:      name,
		log:       log,
		metrics:   cfg.metrics,
		nextHop:   cfg.nextHop,
		mtu:       mtu,
		neighbors: neighbor.New(log.Logger),
		sockets:   socktab.New(log.Logger),
		rnd:       rnd.New(),
		rxCh:      make(chan rxItem, 64),
		closeCh:   make(chan struct{}),
	}, nil
}

func (e *Engine) unregister() {
	registryMu.Lock()
	delete(registry, e.name)
	registryMu.Unlock()
}

// primaryBindAddr picks the first IPv4 address, falling back to the first
// address of any family, for an OS-socket backend's wildcard-free bind.
func primaryBindAddr(addrs []wire.IfaceAddr) (wire.Addr, bool) {
	for _, a := range addrs {
		if a.Addr.Is4() {
			return a.Addr, true
		}
	}
	if len(addrs) > 0 {
		return addrs[0].Addr, true
	}
	return wire.Addr{}, false
}

// Name returns the interface name (or pipe-pair name) this engine was
// constructed with.
func (e *Engine) Name() string { return e.name }

// MAC returns the engine's link-layer address. For an OS-socket-backed
// engine it is the interface MAC discovered at Init and is not used for
// framing, since the kernel builds the link-layer headers.
func (e *Engine) MAC() wire.EthAddr { return e.mac }

// LocalAddrs returns the engine's discovered (or pipe-supplied) interface
// addresses, indexable by Bind's addrIdx parameter.
func (e *Engine) LocalAddrs() []wire.IfaceAddr { return e.addrs }

// Arena returns the engine's buffer pool.
func (e *Engine) Arena() *arena.Arena { return e.arena }

// Cleanup releases the transport, stops the receive pump, and frees the
// interface name for reuse by a later Init.
func (e *Engine) Cleanup() {
	if e.closed {
		return
	}
	e.closed = true
	close(e.closeCh)
	if e.driver != nil {
		e.driver.Close()
	}
	for _, s := range append([]*Socket(nil), e.openSocks...) {
		s.Close()
	}
	e.unregister()
}

// NicRx waits up to d for one frame or datagram to arrive and dispatches
// it, returning true if something was processed. d == 0 polls without
// blocking; d < 0 blocks until ctx is done or data arrives.
func (e *Engine) NicRx(ctx context.Context, d time.Duration) bool {
	if d == 0 {
		select {
		case item := <-e.rxCh:
			e.dispatchRX(item)
			return true
		default:
			return false
		}
	}

	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case item := <-e.rxCh:
		e.dispatchRX(item)
		return true
	case <-timeout:
		return false
	case <-ctx.Done():
		return false
	case <-e.closeCh:
		return false
	}
}

func (e *Engine) dispatchRX(item rxItem) {
	if e.driver != nil {
		e.handleBypassFrame(item.data)
		return
	}
	e.handleOssockPacket(item.data, item.meta, item.local)
}

// RxReady appends every open socket with a non-empty RX queue to out.
func (e *Engine) RxReady(out *[]*Socket) {
	for _, s := range e.openSocks {
		if !s.sock.RX.Empty() {
			*out = append(*out, s)
		}
	}
}
