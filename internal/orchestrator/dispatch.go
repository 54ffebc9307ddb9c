package orchestrator

import (
	"net"
	"time"

	"distributed-energy-ledger/internal/election"
	"distributed-energy-ledger/internal/wire"
)

func (n *Node) handleMulticast(data []byte, addr net.Addr) { n.handleInbound(data, addr) }
func (n *Node) handleUnicast(data []byte, addr net.Addr)   { n.handleInbound(data, addr) }

// handleInbound is the single entry point for every received datagram,
// regardless of which transport it arrived on: decode, loopback-filter,
// first-contact bookkeeping, dedup, the causal gate, then dispatch.
func (n *Node) handleInbound(data []byte, addr net.Addr) {
	msg, err := wire.Decode(data)
	if err != nil {
		n.log.Printf("dropping malformed datagram from %s: %v", addr, err)
		return
	}

	if msg.Kind == "" {
		n.log.Printf("dropping datagram with empty kind from %s", addr)
		return
	}

	if msg.SenderID == n.id {
		return // loopback: multicast delivers our own sends back to us
	}

	udpAddr, _ := addr.(*net.UDPAddr)
	now := time.Now()

	n.members.Observe(msg.SenderID, msg.SenderPriority, udpAddr)
	n.vc.AddNode(msg.SenderID)
	if !n.detector.IsAlive(msg.SenderID) {
		n.detector.AddNode(msg.SenderID, now)
	}
	if n.elect.Coordinator() == msg.SenderID {
		n.detector.RecordLeaderAck(msg.SenderID, now)
	}

	if msg.Payload.MsgID != "" {
		if n.isDuplicate(msg.Payload.MsgID) {
			return
		}
	}

	switch msg.Kind {
	case wire.KindHeartbeat:
		// Heartbeats are explicitly non-causal: no clock update at all.
		n.handleHeartbeat(msg, now)
		return
	case wire.KindAck:
		n.handleAck(msg)
		return
	}

	if wire.IsCausal(msg.Kind) {
		if !n.vc.CanDeliver(msg.SenderID, msg.VectorClock) {
			n.buffer.Add(msg, addr)
			return
		}
		n.vc.Update(msg.VectorClock)
	} else {
		n.vc.Update(msg.VectorClock)
	}

	n.dispatch(msg, addr)
}

// dispatch routes a message that has already passed the dedup and causal
// gates to its component handler.
func (n *Node) dispatch(msg *wire.Message, addr net.Addr) {
	switch msg.Kind {
	case wire.KindElection:
		n.elect.HandleElection(election.Peer{ID: msg.SenderID, Priority: msg.SenderPriority})
	case wire.KindOK:
		n.elect.HandleOK()
	case wire.KindCoordinator:
		n.elect.HandleCoordinator(election.Peer{ID: msg.SenderID, Priority: msg.SenderPriority})
	case wire.KindJoin:
		n.handleJoin(msg, addr)
	case wire.KindJoinResponse:
		n.handleJoinResponse(msg)
	case wire.KindLeave:
		n.handleLeave(msg)
	case wire.KindTradeRequest:
		n.handleTradeRequest(msg)
	case wire.KindTradeResponse:
		n.handleTradeResponse(msg)
	case wire.KindTradeConfirm:
		n.handleTradeConfirm(msg)
	case wire.KindLedgerSync:
		n.handleLedgerSync(msg)
	case wire.KindStateRequest:
		n.handleStateRequest(msg)
	case wire.KindGossip:
		n.handleGossip(msg)
	default:
		n.log.Printf("dropping unknown message kind %q from %s", msg.Kind, msg.SenderID)
	}
}

func (n *Node) handleHeartbeat(msg *wire.Message, now time.Time) {
	n.detector.RecordHeartbeat(msg.SenderID, now)
}

func (n *Node) handleAck(msg *wire.Message) {
	if msg.Payload.AckFor == "" {
		return
	}
	n.ucast.Acknowledge(msg.Payload.AckFor)
}

// isDuplicate checks and records msgID for deduplication, returning true
// if it was already seen within the dedup TTL window.
func (n *Node) isDuplicate(msgID string) bool {
	n.dedupMu.Lock()
	defer n.dedupMu.Unlock()
	if _, seen := n.dedup[msgID]; seen {
		return true
	}
	n.dedup[msgID] = time.Now()
	return false
}
