package orchestrator

import (
	"context"
	"time"

	"distributed-energy-ledger/internal/wire"
)

// heartbeatLoop emits a HEARTBEAT over multicast every configured
// interval. Heartbeats deliberately never touch the vector clock — see
// internal/vclock and buildMessage's withClock parameter.
func (n *Node) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := n.buildMessage(wire.KindHeartbeat, wire.Payload{Balance: n.ledger.Balance()}, false)
			n.broadcast(m)
		}
	}
}

// failureCheckLoop drives the two-phase suspicion→failure progression.
// It waits out one full heartbeat interval at startup (so normal process
// bring-up jitter is never mistaken for a missing peer) before running
// Check on a HeartbeatInterval/2 ticker thereafter.
func (n *Node) failureCheckLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(n.cfg.HeartbeatInterval):
	}

	ticker := time.NewTicker(n.cfg.HeartbeatInterval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.detector.Check(time.Now(), n.elect.IsCoordinator())
		}
	}
}

// bufferDrainLoop periodically sweeps the hold-back buffer for entries
// that have become deliverable — either because the message that
// unblocked them finally arrived, or because it was itself just drained
// this same tick. Each tick loops Drain to exhaustion so a chain of
// several dependent messages delivered out of order all land in one pass
// rather than trickling out one tick at a time.
func (n *Node) bufferDrainLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				delivered := n.buffer.Drain(func(sender string, vc map[string]uint64) bool {
					return n.vc.CanDeliver(sender, vc)
				})
				if len(delivered) == 0 {
					break
				}
				for _, entry := range delivered {
					n.vc.Update(entry.Message.VectorClock)
					n.dispatch(entry.Message, entry.Addr)
				}
			}
		}
	}
}

// dedupPurgeLoop evicts dedup cache entries older than dedupTTL so the
// map doesn't grow without bound over a long-running process.
func (n *Node) dedupPurgeLoop(ctx context.Context) {
	ticker := time.NewTicker(dedupPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-dedupTTL)
			n.dedupMu.Lock()
			for id, seenAt := range n.dedup {
				if seenAt.Before(cutoff) {
					delete(n.dedup, id)
				}
			}
			n.dedupMu.Unlock()
		}
	}
}
