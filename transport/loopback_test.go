package transport

import (
	"sync"
	"testing"
	"time"
)

func TestLoopbackDirectDelivery(t *testing.T) {
	bus := NewBus()
	a := NewLoopbackTransport(bus, "A", 0)
	b := NewLoopbackTransport(bus, "B", 0)
	a.Start()
	b.Start()
	defer a.Stop()
	defer b.Stop()

	received := make(chan string, 1)
	b.OnReceive(func(source string, frame []byte) {
		received <- source + ":" + string(frame)
	})

	if err := a.Send("B", []byte("hi")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		if got != "A:hi" {
			t.Errorf("expected A:hi, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestLoopbackBroadcastExcludesSender(t *testing.T) {
	bus := NewBus()
	a := NewLoopbackTransport(bus, "A", 0)
	b := NewLoopbackTransport(bus, "B", 0)
	c := NewLoopbackTransport(bus, "C", 0)
	a.Start()
	b.Start()
	c.Start()
	defer a.Stop()
	defer b.Stop()
	defer c.Stop()

	var mu sync.Mutex
	got := map[string]bool{}
	wg := sync.WaitGroup{}
	wg.Add(2)
	b.OnReceive(func(string, []byte) { mu.Lock(); got["B"] = true; mu.Unlock(); wg.Done() })
	c.OnReceive(func(string, []byte) { mu.Lock(); got["C"] = true; mu.Unlock(); wg.Done() })

	if err := a.Send(BroadcastDest, []byte("hi")); err != nil {
		t.Fatalf("send: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if !got["B"] || !got["C"] {
		t.Errorf("expected both B and C to receive broadcast, got %v", got)
	}
}

func TestLoopbackSendToUnknownPeerErrors(t *testing.T) {
	bus := NewBus()
	a := NewLoopbackTransport(bus, "A", 0)
	a.Start()
	defer a.Stop()

	if err := a.Send("nobody", []byte("hi")); err == nil {
		t.Fatal("expected error sending to unregistered peer")
	}
}
