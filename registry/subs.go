package registry

import (
	"sort"
	"sync"
)

// SubscriptionTable tracks topics this node wishes to receive (Local) and,
// per peer, the topics that peer has declared via SUBSCRIBE or HELLO.
//
// Thread safety: guarded by its own mutex, independent of KeyRegistry's, so
// publish fan-out lookups never contend with key-gating lookups.
type SubscriptionTable struct {
	mu     sync.RWMutex
	local  map[string]struct{}
	remote map[string]map[string]struct{}
}

// NewSubscriptionTable returns an empty subscription table.
func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{
		local:  make(map[string]struct{}),
		remote: make(map[string]map[string]struct{}),
	}
}

// LocalTopics returns the current local subscription set, sorted.
func (s *SubscriptionTable) LocalTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.local)
}

// MutateLocal adds and removes topics from the local set, reporting
// whether anything actually changed (callers use this to decide whether a
// SUBSCRIBE broadcast is warranted).
func (s *SubscriptionTable) MutateLocal(add, remove []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, t := range add {
		if _, ok := s.local[t]; !ok {
			s.local[t] = struct{}{}
			changed = true
		}
	}
	for _, t := range remove {
		if _, ok := s.local[t]; ok {
			delete(s.local, t)
			changed = true
		}
	}
	return changed
}

// SetRemote replaces the declared subscription set for peer, used when a
// HELLO carries a non-empty subs list.
func (s *SubscriptionTable) SetRemote(peer string, topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote[peer] = toSet(topics)
}

// ApplyRemoteDelta applies a SUBSCRIBE frame's add/remove sets to peer's
// declared subscriptions, creating the peer's entry if needed.
func (s *SubscriptionTable) ApplyRemoteDelta(peer string, add, remove []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.remote[peer]
	if !ok {
		current = make(map[string]struct{})
		s.remote[peer] = current
	}
	for _, t := range add {
		current[t] = struct{}{}
	}
	for _, t := range remove {
		delete(current, t)
	}
}

// SubscribersOf returns every peer whose declared subscriptions include
// topic (the publish fan-out set), sorted.
func (s *SubscriptionTable) SubscribersOf(topic string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for peer, topics := range s.remote {
		if _, ok := topics[topic]; ok {
			out = append(out, peer)
		}
	}
	return sortedStrings(out)
}

// DropPeer removes a peer's declared subscriptions entirely, used when
// KeyRegistry.Prune evicts a stale peer.
func (s *SubscriptionTable) DropPeer(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remote, peer)
}

func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
