// Package vclock implements vector clocks for tracking causality between
// nodes exchanging application events over an unordered transport.
//
// Problem:
//
// UDP gives no ordering guarantees. Two trade messages sent in sequence by
// one node can arrive at another node out of order, or interleaved with
// messages from a third node that causally depend on the first. A vector
// clock lets a receiver detect exactly when it is safe to apply a message
// without violating happens-before order, without requiring a total order
// across the whole group.
//
// How it works:
//
//   - Each node keeps one counter per node it has ever heard from.
//   - On SEND: increment own counter, attach a snapshot of the whole clock.
//   - On RECEIVE: merge the incoming clock (element-wise max) into the
//     local one, then increment the local node's own counter to record the
//     receive event.
//   - A message can be delivered once its sender's counter in the message
//     is exactly one more than what the receiver has already seen from that
//     sender, and every other entry in the message is already covered by
//     the receiver's clock.
package vclock

import "sync"

// Clock maps a node's string identifier to its logical counter.
//
// Keys are strings (not the numeric node ID) so the clock serializes
// cleanly to JSON and round-trips identically regardless of the wire
// codec's key ordering.
type Clock map[string]uint64

// Copy returns a deep copy of c, safe for a caller to mutate independently.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Relation describes the causal ordering between two clocks, as returned by
// VectorClock.Compare.
type Relation int

const (
	// Equal means both clocks carry identical entries.
	Equal Relation = iota
	// Before means the receiver's clock happened-before the other.
	Before
	// After means the receiver's clock happened-after the other.
	After
	// Concurrent means neither clock happened-before the other.
	Concurrent
)

// VectorClock is a thread-safe per-node logical clock.
//
// The zero value is not usable; construct with New.
type VectorClock struct {
	mu   sync.Mutex
	self string
	clk  Clock
}

// New creates a vector clock for node self, starting at zero.
// Other nodes are added lazily the first time their counter is observed.
func New(self string) *VectorClock {
	return &VectorClock{
		self: self,
		clk:  Clock{self: 0},
	}
}

// Increment raises this node's own counter by one and returns a snapshot
// of the whole clock, intended to be attached to an outgoing message.
//
// Call this immediately before sending any causally-ordered message.
func (v *VectorClock) Increment() Clock {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clk[v.self]++
	return v.clk.Copy()
}

// Update merges an incoming clock into the local one — taking the
// element-wise maximum over the union of both key sets — and then
// increments this node's own counter to record the receive event.
//
// A nil incoming clock is a no-op (non-causal message kinds, such as
// HEARTBEAT, never call Update or Increment; see the orchestrator).
func (v *VectorClock) Update(in Clock) {
	if in == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for node, val := range in {
		if cur := v.clk[node]; val > cur {
			v.clk[node] = val
		}
	}
	v.clk[v.self]++
}

// CanDeliver reports whether a message from sender carrying vector clock in
// is safe to deliver now given the local clock's current state.
//
// A message is deliverable when it is exactly the next message expected
// from its sender (in[sender] == local[sender]+1) and every other entry it
// carries is already covered by what this node has seen
// (in[k] <= local[k] for all k != sender). A nil clock always delivers
// immediately — it marks a non-causal message kind.
func (v *VectorClock) CanDeliver(sender string, in Clock) bool {
	if in == nil {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if in[sender] != v.clk[sender]+1 {
		return false
	}
	for node, val := range in {
		if node == sender {
			continue
		}
		if val > v.clk[node] {
			return false
		}
	}
	return true
}

// Compare returns how the local clock relates causally to other.
func (v *VectorClock) Compare(other Clock) Relation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return compare(v.clk, other)
}

// CompareClocks returns how clock a relates causally to clock b, without
// requiring either side to be the live clock of a VectorClock. Used by the
// registry when reconciling two received snapshots.
func CompareClocks(a, b Clock) Relation {
	return compare(a, b)
}

func compare(a, b Clock) Relation {
	var less, greater bool
	seen := make(map[string]struct{}, len(a)+len(b))
	for node := range a {
		seen[node] = struct{}{}
	}
	for node := range b {
		seen[node] = struct{}{}
	}
	for node := range seen {
		av, bv := a[node], b[node]
		switch {
		case av < bv:
			less = true
		case av > bv:
			greater = true
		}
	}
	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	case !less && !greater:
		return Equal
	default:
		return Concurrent
	}
}

// AddNode registers a node in the clock with a zero counter if it is not
// already present. Called on first contact with a peer (JOIN, or any
// observed message from an unknown sender).
func (v *VectorClock) AddNode(node string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.clk[node]; !ok {
		v.clk[node] = 0
	}
}

// RemoveNode is intentionally a no-op.
//
// Removing a departed node's entry would strand hold-back buffer entries
// that reference it — a buffered message waiting on that entry would never
// become deliverable. Entries are retained for the lifetime of the process.
func (v *VectorClock) RemoveNode(node string) {}

// Snapshot returns a copy of the current clock state.
func (v *VectorClock) Snapshot() Clock {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clk.Copy()
}

// LocalTime returns this node's own counter.
func (v *VectorClock) LocalTime() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clk[v.self]
}
