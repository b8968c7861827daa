// Package discovery runs the background ticker that broadcasts this node's
// HELLO envelope, generalizing the original protocol's Discovery class
// (original_source/protocol/discovery.py) from its legacy two-message
// "bamboo.discovery"/"bamboo.keys" REQ broadcast onto the richer HELLO
// envelope this spec consolidates on (see the open question recorded in
// DESIGN.md about the legacy topics).
package discovery

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prkrtg/bamboo/envelope"
	"github.com/prkrtg/bamboo/registry"
)

// minInterval is the floor below which a configured announce interval is
// clamped, matching the protocol's max(1, every_seconds) guard.
const minInterval = time.Second

// Sender is the narrow outbound surface the announcer needs: build a frame
// and hand it to the transport. Supplied by runtime.Runtime so this package
// stays independent of the transport and wire-codec concretes.
type Sender func(msg envelope.Message) error

// Announcer periodically broadcasts a HELLO carrying the local node's
// caps/keys/subs/rev, per §4.6: immediate first announce, then one HELLO
// per tick, with cooperative, bounded-by-one-tick shutdown.
type Announcer struct {
	selfID   string
	keys     *registry.KeyRegistry
	subs     *registry.SubscriptionTable
	interval time.Duration
	send     Sender
	log      logrus.FieldLogger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New returns an Announcer for selfID. interval is clamped to at least
// minInterval, the protocol's documented floor.
func New(selfID string, keys *registry.KeyRegistry, subs *registry.SubscriptionTable, interval time.Duration, send Sender, log logrus.FieldLogger) *Announcer {
	if interval < minInterval {
		interval = minInterval
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Announcer{
		selfID:   selfID,
		keys:     keys,
		subs:     subs,
		interval: interval,
		send:     send,
		log:      log,
	}
}

// Start launches the ticker goroutine. Calling Start on an already-running
// Announcer is a no-op.
func (a *Announcer) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.running = true

	go a.loop(a.stop, a.done)
}

// Stop signals the ticker goroutine to exit and waits for it to finish its
// current tick, never blocking beyond one interval.
func (a *Announcer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	stop, done := a.stop, a.done
	a.running = false
	a.mu.Unlock()

	close(stop)
	<-done
}

// AnnounceNow builds and sends one HELLO immediately, independent of the
// ticker, used both for the ticker's initial announce and for the
// runtime's AnnounceHello public API.
func (a *Announcer) AnnounceNow() error {
	msg, err := a.helloMessage()
	if err != nil {
		return err
	}
	if err := a.send(msg); err != nil {
		a.log.WithError(err).Warn("discovery: announce failed")
		return err
	}
	return nil
}

func (a *Announcer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if err := a.AnnounceNow(); err != nil {
		a.log.WithError(err).Debug("discovery: initial announce failed")
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := a.AnnounceNow(); err != nil {
				a.log.WithError(err).Debug("discovery: tick announce failed")
			}
		}
	}
}

func (a *Announcer) helloMessage() (envelope.Message, error) {
	adv := a.keys.Advertise()
	topics := a.subs.LocalTopics()
	return envelope.NewBuilder(a.selfID).
		Hello(adv.Caps, adv.Keys, topics, adv.Rev, adv.TS).
		Build()
}
