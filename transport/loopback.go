package transport

import (
	"fmt"
	"sync"
)

// Bus is an in-process frame switch shared by every LoopbackTransport
// registered on it. It generalizes the broker's in-memory connection
// registry (internal/broker/service.go's Service.connections /
// Topic.Subscribers bookkeeping) down to a plain peer-id -> callback map,
// since this package has no network listener of its own to run.
//
// A Bus enforces no MTU limit and delivers every frame synchronously from
// the sender's goroutine; the mtu given to NewLoopbackTransport is only
// reported through MTU(), for the runtime's oversize guard.
type Bus struct {
	mu    sync.RWMutex
	peers map[string]*LoopbackTransport
}

// NewBus returns an empty frame switch.
func NewBus() *Bus {
	return &Bus{peers: make(map[string]*LoopbackTransport)}
}

func (b *Bus) register(id string, t *LoopbackTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers[id] = t
}

func (b *Bus) unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.peers, id)
}

func (b *Bus) deliver(from, dest string, frame []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if dest == BroadcastDest {
		for id, peer := range b.peers {
			if id == from {
				continue
			}
			peer.dispatch(from, frame)
		}
		return nil
	}

	peer, ok := b.peers[dest]
	if !ok {
		return fmt.Errorf("transport: unknown peer %q", dest)
	}
	peer.dispatch(from, frame)
	return nil
}

// LoopbackTransport is a Transport backed by a shared Bus, for tests and
// single-process demos that need several peers talking without a real
// network.
type LoopbackTransport struct {
	id  string
	bus *Bus
	mtu int

	mu      sync.RWMutex
	onRecv  ReceiveFunc
	started bool
}

// NewLoopbackTransport creates a transport for peer id on bus. mtu of 0
// means unbounded.
func NewLoopbackTransport(bus *Bus, id string, mtu int) *LoopbackTransport {
	return &LoopbackTransport{id: id, bus: bus, mtu: mtu}
}

func (t *LoopbackTransport) Start() error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	t.bus.register(t.id, t)
	return nil
}

func (t *LoopbackTransport) Stop() error {
	t.bus.unregister(t.id)
	t.mu.Lock()
	t.started = false
	t.mu.Unlock()
	return nil
}

func (t *LoopbackTransport) Send(dest string, frame []byte) error {
	return t.bus.deliver(t.id, dest, frame)
}

func (t *LoopbackTransport) OnReceive(cb ReceiveFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecv = cb
}

func (t *LoopbackTransport) MTU() int { return t.mtu }

func (t *LoopbackTransport) dispatch(source string, frame []byte) {
	t.mu.RLock()
	cb := t.onRecv
	started := t.started
	t.mu.RUnlock()
	if started && cb != nil {
		cb(source, frame)
	}
}
