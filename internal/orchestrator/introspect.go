package orchestrator

import (
	"distributed-energy-ledger/internal/ledger"
)

// Status is a read-only snapshot of this node's high-level state, for the
// debug API's /status endpoint.
type Status struct {
	NodeID        string   `json:"node_id"`
	Priority      int      `json:"priority"`
	Coordinator   string   `json:"coordinator"`
	IsCoordinator bool     `json:"is_coordinator"`
	ElectionLive  bool     `json:"election_in_progress"`
	KnownPeers    []string `json:"known_peers"`
	ActivePeers   []string `json:"active_peers"`
	Balance       int      `json:"balance"`
}

// Status returns a point-in-time snapshot of this node's coordination
// state. Safe to call concurrently with everything else — every field
// read here is already behind its own component's lock.
func (n *Node) Status() Status {
	return Status{
		NodeID:        n.id,
		Priority:      n.cfg.Priority,
		Coordinator:   n.elect.Coordinator(),
		IsCoordinator: n.elect.IsCoordinator(),
		ElectionLive:  n.elect.IsInProgress(),
		KnownPeers:    n.members.Peers(),
		ActivePeers:   n.detector.ActiveNodes(),
		Balance:       n.ledger.Balance(),
	}
}

// LedgerState returns this node's own full ledger snapshot, for the debug
// API's /ledger endpoint.
func (n *Node) LedgerState() ledger.State {
	return n.ledger.GetState()
}

// History returns this node's applied transaction log, for the debug
// API's /history endpoint.
func (n *Node) History() []ledger.Transaction {
	return n.ledger.History()
}

// RegistrySnapshot returns the coordinator's full per-node view, for the
// debug API's /nodes endpoint. Empty (or stale) on a node that has never
// been coordinator.
func (n *Node) RegistrySnapshot() map[string]ledger.State {
	return n.reg.Snapshot()
}
