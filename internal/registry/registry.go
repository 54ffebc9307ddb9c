// Package registry implements the coordinator-held map from node ID to
// that node's latest known ledger snapshot.
//
// The reconciliation rule here — prefer the snapshot whose vector clock
// happened-after the other, falling back to a wall-clock UpdatedAt
// tiebreak when the two are concurrent — is adapted from the reference
// module's quorum replicator (internal/cluster/replicator.go's
// reconcile()), which picked a winner among several replica responses the
// same way. There the inputs were racing replica reads of one KV key;
// here they are racing GOSSIP and LEDGER_SYNC updates about one peer's
// ledger, but the conflict shape — and the fix — is identical.
package registry

import (
	"log"
	"sync"

	"distributed-energy-ledger/internal/ledger"
	"distributed-energy-ledger/internal/vclock"
)

// Registry is the coordinator's authoritative view of every node's
// ledger, as reported by that node (directly or via gossip).
//
// Only meaningful while this process believes itself to be coordinator,
// but harmless to keep populated otherwise — a future coordinator
// benefits from a warm registry (see Gossip in SPEC_FULL.md §4.12).
type Registry struct {
	mu     sync.Mutex
	states map[string]entry
	log    *log.Logger
}

type entry struct {
	state ledger.State
	clock vclock.Clock
}

// New creates an empty registry.
func New(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(log.Writer(), "registry: ", log.LstdFlags)
	}
	return &Registry{states: make(map[string]entry), log: logger}
}

// Update applies an observed snapshot for nodeID, reconciling against
// whatever is already on file for that node. A snapshot whose clock
// happened-before what's on file is ignored (it is stale information
// arriving late); a happened-after snapshot replaces the entry outright;
// a concurrent pair is broken by UpdatedAt, with ties logged for operator
// attention rather than silently resolved (see SPEC_FULL.md §9 Open
// Question (a)).
func (r *Registry) Update(nodeID string, s ledger.State, clock vclock.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.states[nodeID]
	if !ok {
		r.states[nodeID] = entry{state: s, clock: clock}
		return
	}

	switch vclock.CompareClocks(clock, existing.clock) {
	case vclock.Before:
		return
	case vclock.After, vclock.Equal:
		r.states[nodeID] = entry{state: s, clock: clock}
	case vclock.Concurrent:
		if s.UpdatedAt.After(existing.state.UpdatedAt) {
			r.states[nodeID] = entry{state: s, clock: clock}
		} else if s.UpdatedAt.Equal(existing.state.UpdatedAt) {
			r.log.Printf("registry: concurrent update for node %s with identical timestamp, keeping existing entry", nodeID)
		}
	}
}

// Reset clears every entry and seeds the registry with self's own
// snapshot — called when this node becomes coordinator, immediately
// before bootstrapping from peers via STATE_REQUEST.
func (r *Registry) Reset(selfID string, selfState ledger.State, selfClock vclock.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = map[string]entry{selfID: {state: selfState, clock: selfClock}}
}

// AdjustBalance nudges nodeID's tracked balance by delta without touching
// its clock or any other field, mirroring how a coordinator applies a
// just-confirmed trade to both parties' registry entries directly rather
// than waiting for their next LEDGER_SYNC/GOSSIP. A no-op if nodeID isn't
// yet tracked.
func (r *Registry) AdjustBalance(nodeID string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.states[nodeID]
	if !ok {
		return
	}
	e.state.Balance += delta
	r.states[nodeID] = e
}

// Get returns the last-known snapshot for nodeID, if any.
func (r *Registry) Get(nodeID string) (ledger.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.states[nodeID]
	return e.state, ok
}

// Snapshot returns a copy of every tracked node's state, keyed by node ID.
func (r *Registry) Snapshot() map[string]ledger.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ledger.State, len(r.states))
	for id, e := range r.states {
		out[id] = e.state
	}
	return out
}
