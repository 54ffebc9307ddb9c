// Package causal implements the hold-back buffer: a queue of causally-
// ordered messages that arrived before they were safe to deliver.
package causal

import (
	"net"
	"sync"

	"distributed-energy-ledger/internal/wire"
)

// Entry pairs a buffered message with the address it arrived from, so a
// reply can still be addressed correctly once the message is delivered.
type Entry struct {
	Message *wire.Message
	Addr    net.Addr
}

// DeliverableFunc reports whether a message from sender carrying vc is
// currently safe to deliver. Implemented by *vclock.VectorClock.CanDeliver.
type DeliverableFunc func(sender string, vc map[string]uint64) bool

// Buffer is a thread-safe FIFO of not-yet-deliverable causal messages.
//
// Entries are appended by the inbound receive path whenever a causal
// message (TRADE_REQUEST, TRADE_CONFIRM) fails its delivery check. A
// periodic drainer re-scans the whole buffer: delivering one entry updates
// the vector clock, which can make a later entry deliverable, so the
// drainer keeps calling Drain until a call returns nothing.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty hold-back buffer.
func New() *Buffer {
	return &Buffer{}
}

// Add enqueues a message that failed its causal delivery check.
func (b *Buffer) Add(msg *wire.Message, addr net.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, Entry{Message: msg, Addr: addr})
}

// Size reports how many messages are currently buffered.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Drain removes and returns, in FIFO order, every entry deliverable
// according to canDeliver. Every entry is checked in one pass against the
// clock as it stands when Drain is called, so an entry that only becomes
// deliverable once an earlier returned entry has been processed (the
// caller updates the clock as it processes each returned entry in order)
// stays queued until the next call. A single Drain call therefore does not
// exhaust everything eventually deliverable — the periodic drainer calls
// Drain repeatedly for exactly that reason.
func (b *Buffer) Drain(canDeliver func(sender string, vc map[string]uint64) bool) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var deliverable []Entry
	var remaining []Entry
	for _, e := range b.entries {
		vc := toUint64Map(e.Message.VectorClock)
		if canDeliver(e.Message.SenderID, vc) {
			deliverable = append(deliverable, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	b.entries = remaining
	return deliverable
}

func toUint64Map(c map[string]uint64) map[string]uint64 {
	return c
}
