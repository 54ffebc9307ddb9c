package orchestrator

import (
	"context"
	"net"
	"time"

	"distributed-energy-ledger/internal/ledger"
	"distributed-energy-ledger/internal/wire"
)

// announceJoin tells the group this node is present, as three multicast
// copies but with no acknowledgment: if a coordinator is already up it
// will answer with JOIN_RESPONSE; if not (a fresh group), this node's own
// election startup path takes over.
func (n *Node) announceJoin() {
	m := n.buildMessage(wire.KindJoin, wire.Payload{}, true)
	n.broadcastReliable(m, 3, 100*time.Millisecond)
}

// handleJoin processes an inbound JOIN from a new peer. Per §4.8: track
// the joiner everywhere, and if this node is coordinator, hand it state —
// twice, for redundancy — then re-announce the coordinator so any peer
// that missed earlier announcements reconverges.
func (n *Node) handleJoin(msg *wire.Message, addr net.Addr) {
	udpAddr, _ := addr.(*net.UDPAddr)
	n.members.Join(msg.SenderID, msg.SenderPriority, udpAddr)
	n.detector.AddNode(msg.SenderID, time.Now())

	if !n.elect.IsCoordinator() {
		return
	}

	state, ok := n.reg.Get(msg.SenderID)
	if !ok {
		state = ledger.State{
			NodeID:    msg.SenderID,
			Balance:   n.cfg.InitialCredits,
			UpdatedAt: time.Now(),
		}
	}

	payload := wire.Payload{
		CoordinatorID: n.id,
		KnownNodes:    append(n.members.Peers(), n.id),
		ClockState:    n.vc.Snapshot(),
		LedgerState:   stateToWire(state),
	}

	joinerID := msg.SenderID

	// The ACK-retry sends below block for up to several seconds; run them
	// off the receive-loop goroutine so a slow joiner never stalls delivery
	// of unrelated datagrams on this socket.
	n.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		joinResp := n.buildMessage(wire.KindJoinResponse, payload, true)
		if !n.sendUnicastAckRetry(ctx, joinerID, joinResp, 5, 1500*time.Millisecond) {
			n.log.Printf("JOIN_RESPONSE to %s sent without ACK confirmation", joinerID)
		}

		// Redundant LEDGER_SYNC carrying the same state, per §4.8.
		syncMsg := n.buildMessage(wire.KindLedgerSync, wire.Payload{LedgerSnapshot: stateToWire(state)}, true)
		n.sendUnicastAckRetry(ctx, joinerID, syncMsg, 5, 1500*time.Millisecond)

		// Re-announce so any peer that missed a previous COORDINATOR reconverges.
		n.broadcastReliable(n.buildMessage(wire.KindCoordinator, wire.Payload{}, false), 3, 100*time.Millisecond)
	})
}

// handleJoinResponse applies a coordinator's JOIN_RESPONSE on the joining
// node: adopt the clock, set the coordinator, merge known peers, replace
// ledger state wholesale, and ACK.
func (n *Node) handleJoinResponse(msg *wire.Message) {
	n.vc.Update(msg.Payload.ClockState)
	n.elect.SetCoordinator(msg.Payload.CoordinatorID)
	for _, id := range msg.Payload.KnownNodes {
		if id != n.id {
			n.members.Join(id, parsePriority(id), nil)
			n.detector.AddNode(id, time.Now())
		}
	}
	if msg.Payload.LedgerState != nil {
		n.ledger.SyncFromState(wireToState(msg.Payload.LedgerState))
	}
	if msg.Payload.MsgID != "" {
		n.sendAck(msg.SenderID, nil, msg.Payload.MsgID)
	}
}

// handleLeave processes a graceful LEAVE: drop the peer from every
// component view. If it was the coordinator, start a new election.
func (n *Node) handleLeave(msg *wire.Message) {
	wasCoordinator := n.elect.Coordinator() == msg.SenderID
	n.members.Leave(msg.SenderID)
	n.detector.RemoveNode(msg.SenderID)
	// Vector-clock entry is deliberately retained; see internal/vclock.

	if wasCoordinator {
		n.elect.StartElection(n.higherElectionPeers())
	}
}

// leaveGracefully pushes this node's final ledger snapshot to the
// coordinator (so it isn't lost on a clean shutdown) and announces LEAVE
// before the process exits.
func (n *Node) leaveGracefully() {
	coord := n.elect.Coordinator()
	if coord != "" && coord != n.id {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		state := n.ledger.GetState()
		syncMsg := n.buildMessage(wire.KindLedgerSync, wire.Payload{LedgerSnapshot: stateToWire(state)}, true)
		n.sendUnicastAckRetry(ctx, coord, syncMsg, 3, 1*time.Second)
		cancel()
	}
	n.broadcastReliable(n.buildMessage(wire.KindLeave, wire.Payload{}, true), 3, 100*time.Millisecond)
}

func stateToWire(s ledger.State) *wire.LedgerSnapshot {
	txs := make([]wire.Transaction, len(s.Transactions))
	for i, t := range s.Transactions {
		txs[i] = wire.Transaction{
			Kind:          string(t.Kind),
			Amount:        t.Amount,
			CounterpartyID: t.CounterpartyID,
			TradeID:       t.TradeID,
			Timestamp:     t.Timestamp,
			Clock:         t.Clock,
			BalanceAfter:  t.BalanceAfter,
		}
	}
	pending := make(map[string]wire.PendingTrade, len(s.PendingTrades))
	for id, p := range s.PendingTrades {
		pending[id] = wire.PendingTrade{
			Role:          string(p.Role),
			Amount:        p.Amount,
			CounterpartyID: p.CounterpartyID,
			CreatedAt:     p.CreatedAt,
		}
	}
	return &wire.LedgerSnapshot{
		NodeID:          s.NodeID,
		Balance:         s.Balance,
		Transactions:    txs,
		CompletedTrades: append([]string(nil), s.CompletedTrades...),
		PendingTrades:   pending,
		UpdatedAt:       s.UpdatedAt,
	}
}

func wireToState(w *wire.LedgerSnapshot) ledger.State {
	txs := make([]ledger.Transaction, len(w.Transactions))
	for i, t := range w.Transactions {
		txs[i] = ledger.Transaction{
			Kind:          ledger.TransactionKind(t.Kind),
			Amount:        t.Amount,
			CounterpartyID: t.CounterpartyID,
			TradeID:       t.TradeID,
			Timestamp:     t.Timestamp,
			Clock:         t.Clock,
			BalanceAfter:  t.BalanceAfter,
		}
	}
	pending := make(map[string]ledger.PendingTrade, len(w.PendingTrades))
	for id, p := range w.PendingTrades {
		pending[id] = ledger.PendingTrade{
			Role:          ledger.TransactionKind(p.Role),
			Amount:        p.Amount,
			CounterpartyID: p.CounterpartyID,
			CreatedAt:     p.CreatedAt,
		}
	}
	return ledger.State{
		NodeID:          w.NodeID,
		Balance:         w.Balance,
		Transactions:    txs,
		CompletedTrades: append([]string(nil), w.CompletedTrades...),
		PendingTrades:   pending,
		UpdatedAt:       w.UpdatedAt,
	}
}
