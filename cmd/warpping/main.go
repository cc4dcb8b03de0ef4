// Command warpping sends sequenced, nonce-stamped UDP payloads of
// increasing size to a peer's warpinetd benchmark port and reports
// round-trip latency. Grounded on original_source/bin/ping.c.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypat/warpcore"
	"github.com/soypat/warpcore/arena"
	"github.com/soypat/warpcore/logctl"
	"github.com/soypat/warpcore/rnd"
	"github.com/soypat/warpcore/wire"
)

const benchmarkPort = 55555

type pingOpts struct {
	iface      string
	dst        string
	router     string
	start, end int
	inc        int
	loops      int
	conns      int
	busyWait   bool
	recvWait   time.Duration
}

func main() {
	o := pingOpts{start: 16, end: 1458, inc: 143, loops: 1, conns: 1, recvWait: 250 * time.Millisecond}

	root := &cobra.Command{
		Use:   "warpping",
		Short: "UDP round-trip latency probe against a warpinetd benchmark port",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(o)
		},
	}
	f := root.Flags()
	f.StringVarP(&o.iface, "interface", "i", "", "interface to run over")
	f.StringVarP(&o.dst, "destination", "d", "", "peer address to connect to")
	f.StringVarP(&o.router, "router", "r", "", "next-hop router for non-local peers")
	f.IntVarP(&o.start, "start", "s", o.start, "starting packet length")
	f.IntVarP(&o.inc, "increment", "p", o.inc, "packet length increment; 0 = exponential growth")
	f.IntVarP(&o.end, "end", "e", o.end, "largest packet length")
	f.IntVarP(&o.loops, "loops", "l", o.loops, "repeat iterations per packet length")
	f.IntVarP(&o.conns, "connections", "c", o.conns, "parallel connections")
	f.BoolVarP(&o.busyWait, "busy-wait", "b", false, "poll NicRx instead of blocking")
	root.MarkFlagRequired("interface")
	root.MarkFlagRequired("destination")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "warpping:", err)
		os.Exit(1)
	}
}

func run(o pingOpts) error {
	if o.end < o.start {
		o.end = o.start
	}
	peerAddr, err := netip.ParseAddr(o.dst)
	if err != nil {
		return fmt.Errorf("parse destination: %w", err)
	}

	log := logctl.New(nil)
	opts := []warpcore.Option{warpcore.WithLogger(log)}
	if o.router != "" {
		routerAddr, err := netip.ParseAddr(o.router)
		if err != nil {
			return fmt.Errorf("parse router: %w", err)
		}
		opts = append(opts, warpcore.WithNextHop(routerAddr))
	}

	e, err := warpcore.Init(o.iface, 4096, opts...)
	if err != nil {
		return fmt.Errorf("init engine on %s: %w", o.iface, err)
	}
	defer e.Cleanup()

	addrIdx := -1
	for i, a := range e.LocalAddrs() {
		if a.Addr.Family() == wire.AddrFromNetip(peerAddr).Family() {
			addrIdx = i
			break
		}
	}
	if addrIdx < 0 {
		return fmt.Errorf("no local address shares %s's family", peerAddr)
	}

	peer := wire.SockAddr{IP: wire.AddrFromNetip(peerAddr), Port: benchmarkPort}
	sockets := make([]*warpcore.Socket, o.conns)
	for c := range sockets {
		s, err := e.Bind(addrIdx, 0, warpcore.SocketOptions{})
		if err != nil {
			return fmt.Errorf("bind connection %d: %w", c, err)
		}
		if err := s.Connect(peer); err != nil {
			return fmt.Errorf("connect connection %d: %w", c, err)
		}
		sockets[c] = s
	}

	rng := rnd.New()
	fmt.Println("len\tloop\trtt_us")
	for length := o.start; length <= o.end; {
		for iter := 0; iter < o.loops; iter++ {
			s := sockets[rng.Uniform32(uint32(len(sockets)))]
			rtt, err := probe(e, s, rng, uint32(length), o.busyWait, o.recvWait)
			if err != nil {
				log.WarnRate("probe-timeout", "no reply", "len", length, "err", err)
				continue
			}
			fmt.Printf("%d\t%d\t%.1f\n", length, iter, float64(rtt)/float64(time.Microsecond))
		}
		if o.inc == 0 {
			length *= 2
		} else {
			length += o.inc
		}
	}
	return nil
}

// probe sends one nonce-stamped payload of size length and waits up to
// recvWait for its echo, returning the measured round trip.
func probe(e *warpcore.Engine, s *warpcore.Socket, rng *rnd.Source, length uint32, busyWait bool, recvWait time.Duration) (time.Duration, error) {
	var out arena.Queue
	e.AllocLen(s.Family(), &out, uint(length), 0, 0)
	if out.Empty() {
		return 0, fmt.Errorf("arena exhausted")
	}
	stampPayload(&out, rng.Uint64(), uint64(length))

	if err := s.Tx(&out); err != nil {
		e.Free(&out)
		return 0, err
	}
	before := time.Now()
	if err := e.NicTx(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), recvWait)
	defer cancel()
	var in arena.Queue
	for in.Len() < 1 {
		d := time.Duration(-1)
		if busyWait {
			d = 0
		}
		if !e.NicRx(ctx, d) {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			continue
		}
		s.Rx(&in)
	}
	after := time.Now()
	e.Free(&in)
	return after.Sub(before), nil
}

func stampPayload(q *arena.Queue, nonce, length uint64) {
	q.Each(func(v *arena.Vector) {
		buf := v.Payload()
		if len(buf) < 16 {
			return
		}
		putUint64(buf[0:8], nonce)
		putUint64(buf[8:16], length)
	})
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}
