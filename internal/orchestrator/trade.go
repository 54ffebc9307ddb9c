package orchestrator

import (
	"fmt"

	"distributed-energy-ledger/internal/ledger"
	"distributed-energy-ledger/internal/wire"
)

// ProposeTrade is the operator-facing entry point for starting a trade:
// sell moves amount from this node to target, buy moves amount from
// target to this node. It runs phase one of the three-phase protocol
// (§4.10) — sending TRADE_REQUEST — and returns once the request is on
// the wire; settlement completes asynchronously as TRADE_RESPONSE and
// TRADE_CONFIRM arrive.
func (n *Node) ProposeTrade(targetID string, amount int, tradeType string) error {
	if targetID == n.id {
		return fmt.Errorf("orchestrator: cannot trade with self")
	}
	if !n.members.Known(targetID) {
		return fmt.Errorf("orchestrator: node %q not available (unknown peer)", targetID)
	}
	if !n.detector.IsAlive(targetID) {
		return fmt.Errorf("orchestrator: node %q not available (not currently alive)", targetID)
	}

	var role ledger.TransactionKind
	switch tradeType {
	case "sell":
		role = ledger.Sell
	case "buy":
		role = ledger.Buy
	default:
		return fmt.Errorf("orchestrator: trade type must be buy or sell, got %q", tradeType)
	}

	if role == ledger.Sell && !n.ledger.CanSell(amount) {
		return fmt.Errorf("orchestrator: insufficient balance to sell %d", amount)
	}

	tradeID := n.NewTradeID(targetID)
	n.ledger.AddPendingTrade(tradeID, role, amount, targetID)

	req := n.buildMessage(wire.KindTradeRequest, wire.Payload{
		TradeID:   tradeID,
		Amount:    amount,
		TradeType: tradeType,
		TargetID:  targetID,
	}, true)

	if !n.sendUnicastWithRetry(targetID, req) {
		n.ledger.RemovePendingTrade(tradeID)
		return fmt.Errorf("orchestrator: failed to send TRADE_REQUEST to %s", targetID)
	}
	return nil
}

// handleTradeRequest is the responder's side of phase one: decide whether
// to accept the proposed trade and record the matching pending entry
// before answering, so a racing duplicate REQUEST finds HasTrade already
// true and is ignored rather than double-counted.
func (n *Node) handleTradeRequest(msg *wire.Message) {
	tradeID := msg.Payload.TradeID
	proposer := msg.SenderID

	if n.ledger.HasTrade(tradeID) {
		// Either already decided (resend the same answer) or mid-flight —
		// mid-flight duplicates are silently dropped; a settled trade gets
		// its RESPONSE resent so a proposer that missed the first one isn't
		// left hanging.
		if _, pending := n.ledger.GetPendingTrade(tradeID); !pending {
			n.sendUnicastWithRetry(proposer, n.buildMessage(wire.KindTradeResponse, wire.Payload{
				TradeID:  tradeID,
				Accepted: true,
			}, false))
		}
		return
	}

	// The responder's role is the mirror of the proposer's claimed role:
	// a proposer selling to us means we are buying, and vice versa.
	var myRole ledger.TransactionKind
	switch msg.Payload.TradeType {
	case "sell":
		myRole = ledger.Buy
	case "buy":
		myRole = ledger.Sell
	default:
		n.sendUnicastWithRetry(proposer, n.buildMessage(wire.KindTradeResponse, wire.Payload{
			TradeID:  tradeID,
			Accepted: false,
			Reason:   "unrecognized trade type",
		}, false))
		return
	}

	if myRole == ledger.Sell && !n.ledger.CanSell(msg.Payload.Amount) {
		n.sendUnicastWithRetry(proposer, n.buildMessage(wire.KindTradeResponse, wire.Payload{
			TradeID:  tradeID,
			Accepted: false,
			Reason:   "insufficient balance",
		}, false))
		return
	}

	n.ledger.AddPendingTrade(tradeID, myRole, msg.Payload.Amount, proposer)
	n.sendUnicastWithRetry(proposer, n.buildMessage(wire.KindTradeResponse, wire.Payload{
		TradeID:  tradeID,
		Accepted: true,
	}, false))
}

// handleTradeResponse is phase two on the proposer's side: on acceptance,
// settle locally and send TRADE_CONFIRM so the responder settles too; on
// rejection, discard the pending entry.
func (n *Node) handleTradeResponse(msg *wire.Message) {
	tradeID := msg.Payload.TradeID
	pending, ok := n.ledger.GetPendingTrade(tradeID)
	if !ok {
		return // already settled or unknown trade, nothing to do
	}

	if !msg.Payload.Accepted {
		n.ledger.RemovePendingTrade(tradeID)
		n.log.Printf("trade %s rejected by %s: %s", tradeID, msg.SenderID, msg.Payload.Reason)
		return
	}

	// Capture buyer/seller/amount from the pending entry before executing it
	// settles (ExecutePendingTrade clears the pending entry on success), so
	// CONFIRM carries what a coordinator needs to adjust both parties'
	// registry balances directly without waiting on their next sync.
	buyerID, sellerID, amount := confirmParties(n.id, pending)

	found, ok := n.ledger.ExecutePendingTrade(tradeID, n.vc.Snapshot())
	if found && ok {
		n.recordAudit(tradeID)
	}

	confirm := n.buildMessage(wire.KindTradeConfirm, wire.Payload{
		TradeID:  tradeID,
		Success:  found && ok,
		BuyerID:  buyerID,
		SellerID: sellerID,
		Amount:   amount,
	}, true)
	n.sendUnicastWithRetry(msg.SenderID, confirm)

	n.pushSelfToRegistry()
}

// confirmParties derives the buyer/seller/amount triple for a TRADE_CONFIRM
// payload from this node's own pending-trade record, mirroring whichever
// side selfID held: selling means selfID is the seller and the
// counterparty bought, and vice versa.
func confirmParties(selfID string, p ledger.PendingTrade) (buyerID, sellerID string, amount int) {
	amount = p.Amount
	if p.Role == ledger.Sell {
		return p.CounterpartyID, selfID, amount
	}
	return selfID, p.CounterpartyID, amount
}

// handleTradeConfirm is phase three on the responder's side: settle the
// trade this node agreed to in phase two, now that the proposer has
// confirmed. A CONFIRM reporting failure discards the pending entry
// instead. Delivered only once the causal gate admits it, so it can
// never arrive before the REQUEST that created the pending entry.
func (n *Node) handleTradeConfirm(msg *wire.Message) {
	if msg.Payload.Success && n.elect.IsCoordinator() {
		// Re-broadcast so every other node (which never saw the unicast
		// REQUEST/RESPONSE exchange) learns the trade settled, and apply the
		// balance delta to both parties' registry entries directly rather
		// than waiting for their next LEDGER_SYNC/GOSSIP.
		n.broadcast(msg)
		if msg.Payload.BuyerID != "" && msg.Payload.SellerID != "" {
			n.reg.AdjustBalance(msg.Payload.BuyerID, msg.Payload.Amount)
			n.reg.AdjustBalance(msg.Payload.SellerID, -msg.Payload.Amount)
		}
	}

	if !msg.Payload.Success {
		n.ledger.RemovePendingTrade(msg.Payload.TradeID)
		return
	}

	found, ok := n.ledger.ExecutePendingTrade(msg.Payload.TradeID, msg.VectorClock)
	if found && ok {
		n.recordAudit(msg.Payload.TradeID)
	}
	n.pushSelfToRegistry()
}

// recordAudit appends the most recently applied transaction (if any) to
// the write-only audit trail. The audit log is diagnostic only — it is
// never read back to recover state (§6 Persistence).
func (n *Node) recordAudit(tradeID string) {
	if n.audit == nil {
		return
	}
	history := n.ledger.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].TradeID == tradeID {
			n.audit.Record(history[i])
			return
		}
	}
}

// pushSelfToRegistry reports this node's own ledger state into the local
// registry cache (used if/when this node becomes coordinator) and, if a
// different node is coordinator, pushes via LEDGER_SYNC so the registry
// there stays current without waiting for the next gossip round.
func (n *Node) pushSelfToRegistry() {
	state := n.ledger.GetState()
	clock := n.vc.Snapshot()
	n.reg.Update(n.id, state, clock)

	coord := n.elect.Coordinator()
	if coord == "" || coord == n.id {
		return
	}
	sync := n.buildMessage(wire.KindLedgerSync, wire.Payload{LedgerSnapshot: stateToWire(state)}, true)
	n.sendUnicastWithRetry(coord, sync)
}
