// Package membership tracks known peers, resolves their unicast addresses,
// and routes JOIN/LEAVE into the other components that need to know about
// group changes.
package membership

import (
	"fmt"
	"net"
	"sort"
	"sync"
)

// Peer is one known group member.
type Peer struct {
	ID       string
	Addr     *net.UDPAddr
	Priority int
}

// Membership is the set of peers this node currently believes are part of
// the group, plus their resolved unicast addresses.
//
// Addresses are learned two ways: a static seed map supplied at startup
// (configuration) and learn-on-receive (any inbound datagram registers its
// sender's observed address under its claimed node ID). Learn-on-receive
// always overrides a stale static entry, since it reflects where the peer
// is actually sending from right now.
type Membership struct {
	mu    sync.RWMutex
	self  string
	peers map[string]*Peer
}

// New creates an empty membership view for self, seeded with any static
// peer addresses known at startup.
func New(self string, seed map[string]*net.UDPAddr) *Membership {
	m := &Membership{self: self, peers: make(map[string]*Peer)}
	for id, addr := range seed {
		if id == self {
			continue
		}
		m.peers[id] = &Peer{ID: id, Addr: addr}
	}
	return m
}

// Learn records (or refreshes) the address a peer was last observed
// sending from. Safe to call for every inbound datagram.
func (m *Membership) Learn(id string, addr *net.UDPAddr) {
	if id == m.self {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		p = &Peer{ID: id}
		m.peers[id] = p
	}
	p.Addr = addr
}

// Join adds id (with its observed priority and address) to the known
// peer set, idempotently.
func (m *Membership) Join(id string, priority int, addr *net.UDPAddr) {
	if id == m.self {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		p = &Peer{ID: id}
		m.peers[id] = p
	}
	p.Priority = priority
	if addr != nil {
		p.Addr = addr
	}
}

// Observe is Learn plus a priority refresh, used on every inbound message
// (not just JOIN) so a peer's priority is known even if this node missed
// its original JOIN.
func (m *Membership) Observe(id string, priority int, addr *net.UDPAddr) {
	if id == m.self {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		p = &Peer{ID: id}
		m.peers[id] = p
	}
	p.Priority = priority
	if addr != nil {
		p.Addr = addr
	}
}

// Leave removes id from the known peer set.
func (m *Membership) Leave(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
}

// Addr returns the resolved unicast address for id, or nil if unknown.
func (m *Membership) Addr(id string) *net.UDPAddr {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.peers[id]; ok {
		return p.Addr
	}
	return nil
}

// Known reports whether id is currently a tracked peer.
func (m *Membership) Known(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.peers[id]
	return ok
}

// Peers returns a sorted snapshot of known peer IDs (excluding self).
func (m *Membership) Peers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HigherPriority returns every known peer whose priority exceeds self's,
// used by the Bully election to decide who to challenge.
func (m *Membership) HigherPriority(selfPriority int) []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Peer
	for _, p := range m.peers {
		if p.Priority > selfPriority {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ErrUnknownPeer is returned when an operation needs a resolved address
// for a peer membership has never heard from.
type ErrUnknownPeer struct{ ID string }

func (e *ErrUnknownPeer) Error() string {
	return fmt.Sprintf("membership: no known address for peer %s", e.ID)
}
