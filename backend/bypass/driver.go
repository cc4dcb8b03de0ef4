// Package bypass implements the kernel-bypass backend driver:
// a TAP-device transport that lets the engine hand Ethernet frames
// directly to and from arena-owned buffers, without a per-packet syscall
// round trip through the kernel's UDP stack.
//
// A genuine netmap/DPDK ring — shared memory, producer/consumer indices
// swapped between kernel and userspace — has no portable pure-Go binding;
// songgao/water's TAP character device is the nearest available
// approximation for driving Ethernet frames in and out of userspace. See
// DESIGN.md for the tradeoff this records.
package bypass

import (
	"errors"
	"net"

	"github.com/songgao/water"
)

// Driver is the minimal transport an engine needs from a kernel-bypass
// backend: send and receive whole Ethernet frames, blocking until one is
// available. The engine calls RecvInto from its reader goroutine while
// Send and Close are called from the owning goroutine, so implementations
// must allow those calls to run concurrently with each other.
type Driver interface {
	// Name returns the backend's interface or pipe name, for logging.
	Name() string
	// IsPipe reports whether this driver connects two engines in the same
	// process (the explicit InitPipe construction path) rather than a real
	// interface.
	IsPipe() bool
	// MTU returns the frame size limit the driver was configured with.
	MTU() int
	// RecvInto blocks until one Ethernet frame is available and reads it
	// into buf, returning the frame length. buf is typically an arena
	// vector's backing storage, so no further copy is needed.
	RecvInto(buf []byte) (int, error)
	// Send blocks until buf (one full Ethernet frame) has been handed to
	// the transport.
	Send(buf []byte) error
	// Close releases the underlying transport.
	Close() error
}

// ErrClosed is returned by RecvInto/Send once the driver has been closed.
var ErrClosed = errors.New("bypass: driver closed")

// TapDriver drives a TAP device via songgao/water.
type TapDriver struct {
	iface *water.Interface
	name  string
	mtu   int
}

// NewTapDriver opens (or attaches to, if it already exists) the named TAP
// device and wraps it as a Driver.
func NewTapDriver(name string, mtu int) (*TapDriver, error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = name
	iface, err := water.New(cfg)
	if err != nil {
		return nil, err
	}
	return &TapDriver{iface: iface, name: iface.Name(), mtu: mtu}, nil
}

func (d *TapDriver) Name() string  { return d.name }
func (d *TapDriver) IsPipe() bool  { return false }
func (d *TapDriver) MTU() int      { return d.mtu }
func (d *TapDriver) Close() error  { return d.iface.Close() }
func (d *TapDriver) Send(buf []byte) error {
	_, err := d.iface.Write(buf)
	return err
}
func (d *TapDriver) RecvInto(buf []byte) (int, error) {
	return d.iface.Read(buf)
}

// PipeDriver connects two engines in the same process over an in-memory
// net.Pipe, grounding the explicit InitPipe() constructor recorded in
// SPEC_FULL.md §9: a loopback transport for tests and
// intra-process engine pairs, obtained by construction rather than by
// sniffing the interface name for a magic prefix.
type PipeDriver struct {
	conn net.Conn
	name string
	mtu  int
}

// NewPipeDriverPair returns two PipeDrivers wired to each other: frames
// sent on one arrive on the other's RecvInto.
func NewPipeDriverPair(name string, mtu int) (a, b *PipeDriver) {
	c1, c2 := net.Pipe()
	return &PipeDriver{conn: c1, name: name + "-left", mtu: mtu},
		&PipeDriver{conn: c2, name: name + "-right", mtu: mtu}
}

func (d *PipeDriver) Name() string { return d.name }
func (d *PipeDriver) IsPipe() bool { return true }
func (d *PipeDriver) MTU() int     { return d.mtu }
func (d *PipeDriver) Close() error { return d.conn.Close() }

func (d *PipeDriver) Send(buf []byte) error {
	_, err := d.conn.Write(buf)
	return err
}

func (d *PipeDriver) RecvInto(buf []byte) (int, error) {
	return d.conn.Read(buf)
}
