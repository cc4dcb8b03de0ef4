package warpcore

import "errors"

// Configuration errors: returned from Init/Bind/Connect.
var (
	// ErrDuplicateInterface is returned by Init when an engine already
	// owns the requested interface name. Use InitPipe to create a second,
	// explicitly loopback-paired engine instead (see SPEC_FULL.md §9).
	ErrDuplicateInterface = errors.New("warpcore: engine already initialized on this interface")

	// ErrNoSuchAddrIndex is returned by Bind when addrIdx does not index a
	// local address the engine discovered at Init.
	ErrNoSuchAddrIndex = errors.New("warpcore: address index out of range")

	// ErrFamilyMismatch is returned by Connect when the peer's address
	// family does not match the socket's bound local address family.
	ErrFamilyMismatch = errors.New("warpcore: address family mismatch between socket and peer")

	// ErrNotConnected is returned by Tx when a caller submits a vector with
	// no explicit destination (Vector.SAddr) on a bound-only socket.
	ErrNotConnected = errors.New("warpcore: socket is not connected and vector carries no destination")

	// ErrEngineClosed is returned by operations attempted after Cleanup.
	ErrEngineClosed = errors.New("warpcore: engine has been cleaned up")

	// ErrNoBackend is returned when an engine is constructed without a
	// usable transport (neither a bypass.Driver nor an ossock.Conn).
	ErrNoBackend = errors.New("warpcore: no transport backend configured")
)
