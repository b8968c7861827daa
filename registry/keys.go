// Package registry holds the two tables that back peer discovery: the key
// registry (who serves what, and what they can do) and the subscription
// table (who listens to which topics). Both are process-wide, mutation-
// serialized structures shared by the runtime's dispatcher and its public
// API, generalized from the teacher's broker/client registries
// (internal/broker/service.go's Topic.Subscribers bookkeeping) down to the
// plain in-process tables this spec calls for.
package registry

import (
	"sort"
	"sync"
	"time"
)

// Advertisement is the deterministic, sorted snapshot returned by
// KeyRegistry.Advertise and carried in every HELLO payload.
type Advertisement struct {
	Keys []string
	Caps []string
	Rev  int
	TS   time.Time
}

// KeyRegistry tracks which keys this node serves, which capabilities it
// advertises, and a per-peer table of remote keys/caps/revision/last-seen.
//
// Rev strictly increases on any mutation of Local/LocalCaps; receivers use
// it to reject stale HELLO payloads (see Learn).
//
// Thread safety: all methods lock an internal mutex; critical sections are
// table lookups/inserts only, matching the runtime's "handlers never run
// under the registry lock" rule.
type KeyRegistry struct {
	mu sync.RWMutex

	local     map[string]struct{}
	localCaps map[string]struct{}

	remote     map[string]map[string]struct{}
	remoteCaps map[string]map[string]struct{}
	remoteRev  map[string]int
	lastSeen   map[string]time.Time

	rev int
}

// NewKeyRegistry returns an empty registry advertising the "json" codec
// capability by default, matching the original protocol's KeyRegistry.
func NewKeyRegistry() *KeyRegistry {
	return &KeyRegistry{
		local:      make(map[string]struct{}),
		localCaps:  map[string]struct{}{"json": {}},
		remote:     make(map[string]map[string]struct{}),
		remoteCaps: make(map[string]map[string]struct{}),
		remoteRev:  make(map[string]int),
		lastSeen:   make(map[string]time.Time),
	}
}

// Add registers keys as locally served, incrementing Rev.
func (r *KeyRegistry) Add(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		r.local[k] = struct{}{}
	}
	r.rev++
}

// Remove unregisters keys, incrementing Rev.
func (r *KeyRegistry) Remove(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.local, k)
	}
	r.rev++
}

// SetCaps replaces the locally advertised capability set, incrementing Rev.
func (r *KeyRegistry) SetCaps(caps ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localCaps = make(map[string]struct{}, len(caps))
	for _, c := range caps {
		r.localCaps[c] = struct{}{}
	}
	r.rev++
}

// ServesLocally reports whether key is registered in Local.
func (r *KeyRegistry) ServesLocally(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.local[key]
	return ok
}

// Advertise returns the current, deterministic local advertisement.
func (r *KeyRegistry) Advertise() Advertisement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Advertisement{
		Keys: sortedKeys(r.local),
		Caps: sortedKeys(r.localCaps),
		Rev:  r.rev,
		TS:   time.Now(),
	}
}

// Learn records (or refreshes) what a remote peer serves. If hasRev is set
// and rev is older than a previously learned revision for peer, the
// key/cap sets are NOT overwritten, but last-seen IS refreshed — this is
// the stale-HELLO guard required by the protocol's staleness invariant.
//
// When replace is true the remote key-set is replaced outright; otherwise
// the new keys are unioned into the existing set.
func (r *KeyRegistry) Learn(peer string, keys []string, caps []string, rev int, hasRev bool, ts time.Time, replace bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hasRev {
		if oldRev, known := r.remoteRev[peer]; known && rev < oldRev {
			r.lastSeen[peer] = orNow(ts)
			return
		}
	}

	newKeys := toSet(keys)
	if replace || r.remote[peer] == nil {
		r.remote[peer] = newKeys
	} else {
		for k := range newKeys {
			r.remote[peer][k] = struct{}{}
		}
	}

	if caps != nil {
		r.remoteCaps[peer] = toSet(caps)
	}
	if hasRev {
		r.remoteRev[peer] = rev
	}
	r.lastSeen[peer] = orNow(ts)
}

// Touch refreshes last-seen for peer without altering keys/caps/rev. Used
// by the dispatcher for SUBSCRIBE frames, which carry no key/cap state.
func (r *KeyRegistry) Touch(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen[peer] = time.Now()
}

// PeerSupports reports whether peer is known to serve key.
func (r *KeyRegistry) PeerSupports(peer, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ks, ok := r.remote[peer]
	if !ok {
		return false
	}
	_, ok = ks[key]
	return ok
}

// KnowsPeer reports whether the registry has ever learned anything about
// peer (used by the sender-side key gate to distinguish "known peer
// lacking the key" from "unknown peer, gate does not apply").
func (r *KeyRegistry) KnowsPeer(peer string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.remote[peer]
	return ok
}

// PeersSupporting returns every peer known to serve key.
func (r *KeyRegistry) PeersSupporting(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for peer, ks := range r.remote {
		if _, ok := ks[key]; ok {
			out = append(out, peer)
		}
	}
	sort.Strings(out)
	return out
}

// PeerCaps returns the capability set learned for peer.
func (r *KeyRegistry) PeerCaps(peer string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.remoteCaps[peer])
}

// Prune removes any peer whose last-seen timestamp is older than
// staleAfter, returning the removed peer ids.
func (r *KeyRegistry) Prune(staleAfter time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	var removed []string
	for peer, ts := range r.lastSeen {
		if ts.Before(cutoff) {
			removed = append(removed, peer)
			delete(r.lastSeen, peer)
			delete(r.remote, peer)
			delete(r.remoteCaps, peer)
			delete(r.remoteRev, peer)
		}
	}
	sort.Strings(removed)
	return removed
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, k := range in {
		out[k] = struct{}{}
	}
	return out
}

func orNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
