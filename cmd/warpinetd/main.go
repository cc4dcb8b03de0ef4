// Command warpinetd runs a small set of UDP inetd-style services on top of
// a warpcore engine: echo (port 7), discard (port 9), and a fixed payload
// "benchmark" sink (port 55555) that reassembles a flight of datagrams
// sharing a nonce and echoes it back once complete. Grounded on
// original_source/bin/inetd.c.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soypat/warpcore"
	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/logctl"
	"github.com/soypat/warpcore/wconfig"
	"github.com/soypat/warpcore/wmetrics"
)

const (
	portEcho      = 7
	portDiscard   = 9
	portBenchmark = 55555
)

// payload mirrors original_source's struct payload: an 8-byte nonce
// identifying a flight of datagrams, followed by the flight's total byte
// length, both big-endian.
type payload struct {
	nonce uint64
	len   uint64
}

func decodePayload(buf []byte) (payload, bool) {
	if len(buf) < 16 {
		return payload{}, false
	}
	return payload{
		nonce: beUint64(buf[0:8]),
		len:   beUint64(buf[8:16]),
	}, true
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func main() {
	var cfgPath, iface string
	var busyWait bool

	root := &cobra.Command{
		Use:   "warpinetd",
		Short: "UDP echo/discard/benchmark services on a warpcore engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if iface != "" {
				os.Setenv("WARPCORE_ENGINE_INTERFACE", iface)
			}
			cfg, err := wconfig.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cfg, busyWait)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", "", "optional YAML config file")
	root.Flags().BoolVarP(&busyWait, "busy-wait", "b", false, "poll NicRx instead of blocking")
	root.Flags().StringVarP(&iface, "interface", "i", "", "interface to run over")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "warpinetd:", err)
		os.Exit(1)
	}
}

func run(cfg *wconfig.Config, busyWait bool) error {
	log := logctl.New(nil)
	registry := prometheus.NewRegistry()
	metrics := wmetrics.NewCollector(registry)

	opts := []warpcore.Option{warpcore.WithLogger(log), warpcore.WithMetrics(metrics)}
	if cfg.Engine.Backend == "bypass" {
		opts = append(opts, warpcore.WithTapBackend())
	}
	e, err := warpcore.Init(cfg.Engine.Interface, cfg.Engine.NumBufs, opts...)
	if err != nil {
		return fmt.Errorf("init engine on %s: %w", cfg.Engine.Interface, err)
	}
	defer e.Cleanup()

	var sockets []*warpcore.Socket
	for idx := range e.LocalAddrs() {
		for _, port := range []uint16{portEcho, portDiscard, portBenchmark} {
			s, err := e.Bind(idx, port, warpcore.SocketOptions{})
			if err != nil {
				return fmt.Errorf("bind addr %d port %d: %w", idx, port, err)
			}
			sockets = append(sockets, s)
		}
	}
	log.Info("warpinetd listening", "interface", cfg.Engine.Interface, "sockets", len(sockets))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		g.Go(func() error {
			<-gCtx.Done()
			return metricsSrv.Close()
		})
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		serveDatagrams(gCtx, e, sockets, busyWait, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("warpinetd shutting down")
	return nil
}

// serveDatagrams runs the engine's single owning poll loop: NicRx, dispatch
// ready sockets to echo/discard/benchmark handling, NicTx any replies.
func serveDatagrams(ctx context.Context, e *warpcore.Engine, sockets []*warpcore.Socket, busyWait bool, log *logctl.Logger) {
	bench := newBenchState()
	var ready []*warpcore.Socket
	for ctx.Err() == nil {
		d := time.Duration(-1)
		if busyWait {
			d = 0
		}
		if !e.NicRx(ctx, d) {
			continue
		}

		ready = ready[:0]
		e.RxReady(&ready)
		for _, s := range ready {
			var in, out arena.Queue
			s.Rx(&in)
			if in.Empty() {
				continue
			}
			switch s.LocalAddr().Port {
			case portEcho:
				out.Concat(&in)
			case portDiscard:
				e.Free(&in)
			case portBenchmark:
				bench.handle(e, &in, &out)
			}
			if !out.Empty() {
				if err := s.Tx(&out); err != nil {
					log.WarnRate("tx-error", "tx failed", "err", err)
					e.Free(&out)
				}
				e.NicTx()
			}
			e.Free(&in)
		}
	}
}

// benchState reassembles the fixed "port 55555" flight described in
// original_source/bin/inetd.c: datagrams sharing a nonce accumulate until
// their declared total length is reached, then echo back as one flight.
type benchState struct {
	nonce  uint64
	total  uint64
	tmpLen uint64
	tmp    arena.Queue
}

func newBenchState() *benchState { return &benchState{} }

func (b *benchState) handle(e *warpcore.Engine, in, out *arena.Queue) {
	for v := in.PopHead(); v != nil; v = in.PopHead() {
		p, ok := decodePayload(v.Payload())
		if !ok {
			e.FreeIOV(v)
			continue
		}
		if b.nonce != 0 && b.nonce != p.nonce {
			// a new flight arrived before the old one completed; drop the
			// partial accumulation and start over.
			e.Free(&b.tmp)
			b.tmpLen = 0
		}
		b.nonce = p.nonce
		b.total = p.len
		b.tmp.PushTail(v)
		b.tmpLen += uint64(len(v.Payload()))

		if b.tmpLen >= b.total {
			out.Concat(&b.tmp)
			b.nonce, b.total, b.tmpLen = 0, 0, 0
		}
	}
}
