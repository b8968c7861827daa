// Package transport defines the contract a concrete transport must satisfy
// to carry framed bytes between peers for the runtime, and provides a
// loopback implementation for tests and single-process demos.
//
// Concrete network transports (peer-group multicast, broker-based, etc.)
// are out of scope for this module; a transport is specified purely by its
// Send/OnReceive/lifecycle surface, generalized from the shape of
// go-mcast's core.Transport interface (Broadcast/Unicast/Listen/Close)
// down to the simpler send/receive-callback contract this spec calls for.
package transport

// BroadcastDest is the destination string Send receives for a broadcast
// message (an envelope with no Destid). Concrete transports map this to
// whatever broadcast primitive they have (group shout, multicast, etc.);
// the runtime never overloads the peer-id namespace with this literal.
const BroadcastDest = "broadcast:*"

// ReceiveFunc is invoked once per inbound frame, with the id of the peer
// the transport attributes it to.
type ReceiveFunc func(source string, frame []byte)

// Transport is the minimal bidirectional frame mover the runtime depends
// on. Implementations must make Send safe to call from multiple
// goroutines concurrently; a transport may deliver the same frame at most
// once (duplicate delivery is not required to be handled by the runtime).
type Transport interface {
	// Start begins accepting/delivering frames. Start must be called
	// before Send or before OnReceive's callback can fire.
	Start() error

	// Stop shuts the transport down. Stop must not block indefinitely;
	// implementations should honor a bounded shutdown window.
	Stop() error

	// Send delivers frame to dest, a peer id or BroadcastDest.
	Send(dest string, frame []byte) error

	// OnReceive installs the single callback invoked for every inbound
	// frame. Only one callback is supported; a later call replaces the
	// previous one.
	OnReceive(cb ReceiveFunc)

	// MTU optionally reports the transport's best-effort maximum frame
	// size in bytes. A reported value of 0 means "unknown / unbounded",
	// and the runtime's oversize guard is skipped.
	MTU() int
}
