package causal

import (
	"testing"

	"distributed-energy-ledger/internal/wire"
)

func alwaysDeliverable(sender string, vc map[string]uint64) bool { return true }

func TestAddAndSize(t *testing.T) {
	b := New()
	if b.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", b.Size())
	}
	b.Add(&wire.Message{SenderID: "2"}, nil)
	if b.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", b.Size())
	}
}

func TestDrainDeliversAndRemoves(t *testing.T) {
	b := New()
	b.Add(&wire.Message{SenderID: "2", VectorClock: map[string]uint64{"2": 1}}, nil)
	b.Add(&wire.Message{SenderID: "3", VectorClock: map[string]uint64{"3": 1}}, nil)

	delivered := b.Drain(alwaysDeliverable)
	if len(delivered) != 2 {
		t.Fatalf("Drain delivered %d entries, want 2", len(delivered))
	}
	if b.Size() != 0 {
		t.Fatalf("Size() after full drain = %d, want 0", b.Size())
	}
}

func TestDrainLeavesUndeliverableEntriesQueued(t *testing.T) {
	b := New()
	b.Add(&wire.Message{SenderID: "2", VectorClock: map[string]uint64{"2": 2}}, nil)

	delivered := b.Drain(func(sender string, vc map[string]uint64) bool { return false })
	if len(delivered) != 0 {
		t.Fatalf("expected nothing delivered, got %d", len(delivered))
	}
	if b.Size() != 1 {
		t.Fatalf("Size() = %d, want 1 (entry should remain queued)", b.Size())
	}
}

func TestDrainPreservesFIFOOrderAmongDelivered(t *testing.T) {
	b := New()
	b.Add(&wire.Message{SenderID: "a"}, nil)
	b.Add(&wire.Message{SenderID: "b"}, nil)
	b.Add(&wire.Message{SenderID: "c"}, nil)

	delivered := b.Drain(alwaysDeliverable)
	if len(delivered) != 3 {
		t.Fatalf("got %d delivered, want 3", len(delivered))
	}
	order := []string{delivered[0].Message.SenderID, delivered[1].Message.SenderID, delivered[2].Message.SenderID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestDrainPartitionsMixedEntries(t *testing.T) {
	b := New()
	b.Add(&wire.Message{SenderID: "a"}, nil)
	b.Add(&wire.Message{SenderID: "blocked"}, nil)
	b.Add(&wire.Message{SenderID: "c"}, nil)

	delivered := b.Drain(func(sender string, vc map[string]uint64) bool {
		return sender != "blocked"
	})
	if len(delivered) != 2 {
		t.Fatalf("got %d delivered, want 2", len(delivered))
	}
	if b.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", b.Size())
	}
}
