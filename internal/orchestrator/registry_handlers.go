package orchestrator

import (
	"context"
	"math/rand"
	"time"

	"distributed-energy-ledger/internal/ledger"
	"distributed-energy-ledger/internal/wire"
)

// handleLedgerSync applies an inbound LEDGER_SYNC. Two distinct uses share
// the one message kind (§4.11): a follower reporting its own state to the
// coordinator (registry bookkeeping only), and the coordinator pushing an
// authoritative replacement state down to the node it concerns (a full
// SyncFromState replace) — disambiguated by whether the embedded
// snapshot's node ID is this node's own.
func (n *Node) handleLedgerSync(msg *wire.Message) {
	if msg.Payload.LedgerSnapshot == nil {
		return
	}
	state := wireToState(msg.Payload.LedgerSnapshot)

	if state.NodeID == n.id {
		n.ledger.SyncFromState(state)
	} else {
		n.reg.Update(state.NodeID, state, msg.VectorClock)
	}

	if msg.Payload.MsgID != "" {
		n.sendAck(msg.SenderID, nil, msg.Payload.MsgID)
	}
}

// handleStateRequest answers a coordinator's post-election bootstrap
// request with this node's current ledger snapshot.
func (n *Node) handleStateRequest(msg *wire.Message) {
	state := n.ledger.GetState()
	resp := n.buildMessage(wire.KindLedgerSync, wire.Payload{LedgerSnapshot: stateToWire(state)}, true)
	n.sendUnicastWithRetry(msg.SenderID, resp)
}

// handleGossip applies an inbound anti-entropy GOSSIP message. Gossip only
// ever carries a peer's report of its own state, so — unlike LEDGER_SYNC —
// it never triggers a local SyncFromState; it just keeps the registry
// warm for whichever node is (or becomes) coordinator.
func (n *Node) handleGossip(msg *wire.Message) {
	if msg.Payload.LedgerSnapshot == nil {
		return
	}
	state := wireToState(msg.Payload.LedgerSnapshot)
	if state.NodeID == n.id {
		return
	}
	n.reg.Update(state.NodeID, state, msg.VectorClock)
}

// gossipLoop periodically pushes this node's own ledger snapshot to one
// randomly chosen known peer, the anti-entropy mechanism that keeps a
// future coordinator's registry from depending entirely on STATE_REQUEST
// bootstrap timing (§4.12).
func (n *Node) gossipLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.GossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			peers := n.members.Peers()
			if len(peers) > 0 {
				target := peers[rand.Intn(len(peers))]
				state := n.ledger.GetState()
				gossip := n.buildMessage(wire.KindGossip, wire.Payload{LedgerSnapshot: stateToWire(state)}, true)
				n.sendUnicastWithRetry(target, gossip)
			}

			if n.elect.IsCoordinator() && n.cfg.AuditPath != "" {
				if err := ledger.DumpRegistrySnapshot(n.cfg.AuditPath+".registry.json", n.reg.Snapshot()); err != nil {
					n.log.Printf("registry snapshot dump failed: %v", err)
				}
			}
		}
	}
}
