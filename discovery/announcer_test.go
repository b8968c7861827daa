package discovery

import (
	"sync"
	"testing"
	"time"

	"github.com/prkrtg/bamboo/envelope"
	"github.com/prkrtg/bamboo/registry"
)

func TestAnnouncerSendsImmediateHelloOnStart(t *testing.T) {
	keys := registry.NewKeyRegistry()
	keys.Add("orders.create")
	subs := registry.NewSubscriptionTable()
	subs.MutateLocal([]string{"orders.events"}, nil)

	received := make(chan envelope.Message, 8)
	send := func(msg envelope.Message) error {
		received <- msg
		return nil
	}

	a := New("peer-a", keys, subs, time.Hour, send, nil)
	a.Start()
	defer a.Stop()

	select {
	case msg := <-received:
		if msg.Env.Type != envelope.HELLO {
			t.Fatalf("expected HELLO, got %v", msg.Env.Type)
		}
		if !msg.Env.Broadcast() {
			t.Error("expected broadcast HELLO")
		}
		keysField, _ := msg.Env.Payload["keys"].([]string)
		if len(keysField) != 1 || keysField[0] != "orders.create" {
			t.Errorf("unexpected keys payload: %v", msg.Env.Payload["keys"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial HELLO")
	}
}

func TestAnnouncerTicksPeriodically(t *testing.T) {
	keys := registry.NewKeyRegistry()
	subs := registry.NewSubscriptionTable()

	var mu sync.Mutex
	count := 0
	send := func(msg envelope.Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	a := New("peer-b", keys, subs, 20*time.Millisecond, send, nil)
	// New clamps the interval to minInterval (1s); set it directly so
	// several ticks fit in the short observation window below.
	a.interval = 20 * time.Millisecond
	a.Start()
	defer a.Stop()

	time.Sleep(90 * time.Millisecond)

	mu.Lock()
	got := count
	mu.Unlock()
	if got < 3 {
		t.Errorf("expected at least 3 announces in ~90ms at 20ms interval, got %d", got)
	}
}

func TestAnnouncerStopIsBounded(t *testing.T) {
	keys := registry.NewKeyRegistry()
	subs := registry.NewSubscriptionTable()
	send := func(envelope.Message) error { return nil }

	a := New("peer-c", keys, subs, 50*time.Millisecond, send, nil)
	a.Start()

	done := make(chan struct{})
	go func() {
		a.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("stop did not return within one tick")
	}
}

func TestAnnounceNowIndependentOfTicker(t *testing.T) {
	keys := registry.NewKeyRegistry()
	subs := registry.NewSubscriptionTable()

	received := make(chan envelope.Message, 1)
	send := func(msg envelope.Message) error {
		received <- msg
		return nil
	}

	a := New("peer-d", keys, subs, time.Hour, send, nil)
	if err := a.AnnounceNow(); err != nil {
		t.Fatalf("announce now: %v", err)
	}

	select {
	case <-received:
	default:
		t.Fatal("expected AnnounceNow to send synchronously")
	}
}
