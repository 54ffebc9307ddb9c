package orchestrator

import (
	"context"
	"testing"
	"time"

	"distributed-energy-ledger/internal/vclock"
	"distributed-energy-ledger/internal/wire"
)

func TestDedupPurgeLoopEvictsExpiredEntries(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	n.dedupMu.Lock()
	n.dedup["stale"] = time.Now().Add(-dedupTTL - time.Second)
	n.dedup["fresh"] = time.Now()
	n.dedupMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go n.dedupPurgeLoop(ctx)

	waitUntilTrue(t, func() bool {
		n.dedupMu.Lock()
		defer n.dedupMu.Unlock()
		_, staleStillThere := n.dedup["stale"]
		return !staleStillThere
	})
	cancel()

	n.dedupMu.Lock()
	defer n.dedupMu.Unlock()
	if _, ok := n.dedup["fresh"]; !ok {
		t.Fatal("expected the freshly-seen entry to survive a purge pass")
	}
}

func TestDedupPurgeLoopStopsOnCancel(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.dedupPurgeLoop(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected dedupPurgeLoop to return once its context is cancelled")
	}
}

func TestBufferDrainLoopDeliversQueuedEntryOnceClockCatchesUp(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	n.vc.AddNode("2")

	// A message that is one step ahead of what node 1 has seen from node 2;
	// buffer.Add queues it until CanDeliver agrees it's next.
	msg := &wire.Message{
		Kind:        wire.KindGossip,
		SenderID:    "2",
		VectorClock: vclock.Clock{"2": 1},
	}
	n.buffer.Add(msg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.bufferDrainLoop(ctx)

	waitUntilTrue(t, func() bool { return n.buffer.Size() == 0 })
}
