package orchestrator

import (
	"time"

	"distributed-energy-ledger/internal/wire"
)

// onNodeFailure is the failure detector's callback for a confirmed (not
// merely suspected) peer failure: drop it from membership so it stops
// being considered for unicast sends, trade proposals, or election
// challenges until it rejoins with a fresh JOIN.
func (n *Node) onNodeFailure(id string) {
	n.log.Printf("peer %s declared failed, removing from membership", id)
	n.members.Leave(id)
}

// onLeaderFailure is the failure detector's callback for a confirmed
// coordinator failure: start a new Bully round against every peer with
// higher priority than this node.
func (n *Node) onLeaderFailure() {
	n.log.Printf("coordinator failure detected, starting election")
	n.elect.StartElection(n.higherElectionPeers())
}

// onCoordinatorChange is invoked by the election component whenever the
// believed coordinator changes, whether by winning an election, losing
// one, or receiving an authoritative SetCoordinator. It always resets the
// failure detector's leader-ack timeline; if the new coordinator is this
// node, it also kicks off registry bootstrap (§4.11).
func (n *Node) onCoordinatorChange(id string) {
	n.detector.SetLeader(id, time.Now())
	n.log.Printf("coordinator is now %s", id)
	if id != n.id {
		return
	}
	n.bootstrapRegistry()
}

// bootstrapRegistry resets the registry to a self-only view and requests
// every known peer's ledger state, paced so a burst of STATE_REQUESTs
// from a freshly-elected coordinator doesn't arrive as a thundering herd —
// the same pacing idiom the reference module's replication fan-out uses.
func (n *Node) bootstrapRegistry() {
	state := n.ledger.GetState()
	n.reg.Reset(n.id, state, n.vc.Snapshot())

	peers := n.members.Peers()
	n.spawn(func() {
		for _, p := range peers {
			req := n.buildMessage(wire.KindStateRequest, wire.Payload{}, false)
			n.sendUnicastWithRetry(p, req)
			time.Sleep(50 * time.Millisecond)
		}
	})
}
