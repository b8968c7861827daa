package runtime

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prkrtg/bamboo/registry"
)

// minPruneInterval floors the pruning sweep cadence, mirroring the
// announcer's minInterval guard so a tiny StaleAfter can't spin a tight
// loop.
const minPruneInterval = time.Second

// pruner periodically evicts peers that have gone stale from both the key
// registry and the subscription table, fulfilling the peer-pruning side of
// the info-level logging SPEC_FULL.md's ambient logging section promises.
// Sweep cadence is half of staleAfter (floored at minPruneInterval) so a
// peer is typically evicted well before it has been stale for two full
// cutoff windows.
type pruner struct {
	keys       *registry.KeyRegistry
	subs       *registry.SubscriptionTable
	staleAfter time.Duration
	interval   time.Duration
	log        logrus.FieldLogger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func newPruner(keys *registry.KeyRegistry, subs *registry.SubscriptionTable, staleAfter time.Duration, log logrus.FieldLogger) *pruner {
	interval := staleAfter / 2
	if interval < minPruneInterval {
		interval = minPruneInterval
	}
	return &pruner{
		keys:       keys,
		subs:       subs,
		staleAfter: staleAfter,
		interval:   interval,
		log:        log,
	}
}

// Start launches the sweep ticker goroutine. Calling Start on an
// already-running pruner is a no-op.
func (p *pruner) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.running = true

	go p.loop(p.stop, p.done)
}

// Stop signals the sweep goroutine to exit and waits for it to finish its
// current sweep, never blocking beyond one interval.
func (p *pruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stop, done := p.stop, p.done
	p.running = false
	p.mu.Unlock()

	close(stop)
	<-done
}

func (p *pruner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep evicts every peer KeyRegistry.Prune reports as stale from the
// subscription table too, so a pruned peer's declared topics don't linger
// in the publish fan-out set.
func (p *pruner) sweep() {
	removed := p.keys.Prune(p.staleAfter)
	for _, peer := range removed {
		p.subs.DropPeer(peer)
	}
	if len(removed) > 0 {
		p.log.WithField("peers", removed).Info("runtime: pruned stale peers")
	}
}
