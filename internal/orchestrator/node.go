// Package orchestrator wires every component together into one running
// peer process: it owns both transports, dispatches inbound datagrams by
// kind after the dedup and causal-delivery gates, and drives every
// periodic background task.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"distributed-energy-ledger/internal/causal"
	"distributed-energy-ledger/internal/config"
	"distributed-energy-ledger/internal/election"
	"distributed-energy-ledger/internal/failure"
	"distributed-energy-ledger/internal/idgen"
	"distributed-energy-ledger/internal/ledger"
	"distributed-energy-ledger/internal/membership"
	"distributed-energy-ledger/internal/registry"
	"distributed-energy-ledger/internal/transport"
	"distributed-energy-ledger/internal/vclock"
	"distributed-energy-ledger/internal/wire"
)

const dedupTTL = 30 * time.Second
const dedupPurgeInterval = 5 * time.Second

// Node is one running peer process: every component, wired together.
type Node struct {
	cfg config.Config
	id  string

	mcast *transport.Multicast
	ucast *transport.Unicast

	members  *membership.Membership
	vc       *vclock.VectorClock
	buffer   *causal.Buffer
	detector *failure.Detector
	elect    *election.Election
	ledger   *ledger.Ledger
	reg      *registry.Registry
	audit    *ledger.AuditTrail

	dedupMu sync.Mutex
	dedup   map[string]time.Time

	seq atomic.Uint64

	log *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a fully-wired Node from cfg but does not yet open sockets
// or start any background task — call Run for that.
func New(cfg config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:      cfg,
		id:       cfg.NodeID,
		members:  membership.New(cfg.NodeID, cfg.StaticPeers),
		vc:       vclock.New(cfg.NodeID),
		buffer:   causal.New(),
		ledger:   ledger.New(cfg.NodeID, cfg.InitialCredits, cfg.MinCredits),
		reg:      registry.New(log.New(log.Writer(), fmt.Sprintf("node %s registry: ", cfg.NodeID), log.LstdFlags)),
		dedup:    make(map[string]time.Time),
		log:      log.New(log.Writer(), fmt.Sprintf("node %s: ", cfg.NodeID), log.LstdFlags),
	}

	audit, err := ledger.OpenAuditTrail(cfg.AuditPath)
	if err != nil {
		return nil, err
	}
	n.audit = audit

	n.detector = failure.New(cfg.HeartbeatTimeout, n.onNodeFailure, n.onLeaderFailure,
		log.New(log.Writer(), fmt.Sprintf("node %s failure: ", cfg.NodeID), log.LstdFlags))

	n.elect = election.New(cfg.NodeID, cfg.Priority, cfg.ElectionTimeout, electionTransport{n}, n.onCoordinatorChange,
		n.higherElectionPeers, log.New(log.Writer(), fmt.Sprintf("node %s election: ", cfg.NodeID), log.LstdFlags))

	mcast, err := transport.NewMulticast(cfg.MulticastGroup, cfg.MulticastPort,
		log.New(log.Writer(), fmt.Sprintf("node %s multicast: ", cfg.NodeID), log.LstdFlags))
	if err != nil {
		return nil, err
	}
	n.mcast = mcast

	port, err := cfg.UnicastPort()
	if err != nil {
		mcast.Close()
		return nil, err
	}
	ucast, err := transport.NewUnicast(cfg.UnicastHost, port,
		log.New(log.Writer(), fmt.Sprintf("node %s unicast: ", cfg.NodeID), log.LstdFlags))
	if err != nil {
		mcast.Close()
		return nil, err
	}
	n.ucast = ucast

	return n, nil
}

// electionTransport adapts Node's real transports to the narrow
// election.Transport interface, keeping internal/election free of any
// dependency on internal/transport or internal/wire.
type electionTransport struct{ n *Node }

func (t electionTransport) SendElection(to election.Peer) {
	t.n.sendUnicastTo(to.ID, t.n.buildMessage(wire.KindElection, wire.Payload{}, false))
}

func (t electionTransport) SendOK(to election.Peer) {
	t.n.sendUnicastTo(to.ID, t.n.buildMessage(wire.KindOK, wire.Payload{}, false))
}

func (t electionTransport) BroadcastCoordinator() {
	t.n.broadcastReliable(t.n.buildMessage(wire.KindCoordinator, wire.Payload{}, false), 3, 100*time.Millisecond)
}

// Run opens every background goroutine (receive loops, periodic timers)
// and blocks until ctx is cancelled, then performs a graceful LEAVE.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.log.Printf("starting, priority=%d", n.cfg.Priority)

	n.spawn(func() { n.mcast.Serve(ctx, n.handleMulticast) })
	n.spawn(func() { n.ucast.Serve(ctx, n.handleUnicast) })
	n.spawn(func() { n.heartbeatLoop(ctx) })
	n.spawn(func() { n.failureCheckLoop(ctx) })
	n.spawn(func() { n.bufferDrainLoop(ctx) })
	n.spawn(func() { n.gossipLoop(ctx) })
	n.spawn(func() { n.dedupPurgeLoop(ctx) })

	n.announceJoin()

	if len(n.members.Peers()) == 0 {
		n.elect.StartElection(nil)
	}

	<-ctx.Done()
	n.leaveGracefully()
	n.wg.Wait()
	n.ucast.Close()
	n.mcast.Close()
	n.audit.Close()
	return nil
}

// Stop requests a graceful shutdown.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
}

func (n *Node) spawn(f func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.log.Printf("recovered panic in background task: %v", r)
			}
		}()
		f()
	}()
}

// nextSeq is the monotonic counter idgen uses to keep IDs generated within
// the same nanosecond-resolution tick from colliding.
func (n *Node) nextSeq() uint64 { return n.seq.Add(1) }

// NewTradeID generates a globally-unique trade_id for a trade this node is
// about to propose.
func (n *Node) NewTradeID(counterparty string) string {
	return idgen.NewTradeID(n.id, counterparty, n.nextSeq(), time.Now().UnixNano())
}

func (n *Node) newMsgID(target string) string {
	return idgen.NewMsgID(n.id, target, n.nextSeq(), time.Now().UnixNano())
}

// buildMessage assembles an outbound envelope. withClock attaches the
// current vector clock snapshot (after Increment) for causal/application
// kinds; HEARTBEAT always passes withClock=false per §4.4.
func (n *Node) buildMessage(kind wire.Kind, payload wire.Payload, withClock bool) *wire.Message {
	m := &wire.Message{
		Kind:           kind,
		SenderID:       n.id,
		SenderPriority: n.cfg.Priority,
		Payload:        payload,
		Timestamp:      time.Now(),
	}
	if withClock {
		m.VectorClock = n.vc.Increment()
	}
	return m
}

func (n *Node) encode(m *wire.Message) []byte {
	data, err := wire.Encode(m)
	if err != nil {
		n.log.Printf("encode error for %s: %v", m.Kind, err)
		return nil
	}
	return data
}

func (n *Node) sendUnicastTo(targetID string, m *wire.Message) bool {
	addr := n.members.Addr(targetID)
	if addr == nil {
		n.log.Printf("no known address for peer %s, dropping %s", targetID, m.Kind)
		return false
	}
	data := n.encode(m)
	if data == nil {
		return false
	}
	return n.ucast.Send(data, addr) == nil
}

func (n *Node) sendUnicastWithRetry(targetID string, m *wire.Message) bool {
	addr := n.members.Addr(targetID)
	if addr == nil {
		return false
	}
	data := n.encode(m)
	if data == nil {
		return false
	}
	return n.ucast.SendWithRetry(data, addr, n.cfg.MessageRetryCount, n.cfg.MessageRetryDelay)
}

func (n *Node) sendUnicastAckRetry(ctx context.Context, targetID string, m *wire.Message, attempts int, timeout time.Duration) bool {
	addr := n.members.Addr(targetID)
	if addr == nil {
		return false
	}
	if m.Payload.MsgID == "" {
		m.Payload.MsgID = n.newMsgID(targetID)
	}
	data := n.encode(m)
	if data == nil {
		return false
	}
	return n.ucast.SendWithAckRetry(ctx, data, addr, m.Payload.MsgID, attempts, timeout)
}

func (n *Node) broadcast(m *wire.Message) {
	if n.mcast == nil {
		return
	}
	data := n.encode(m)
	if data == nil {
		return
	}
	if err := n.mcast.Send(data); err != nil {
		n.log.Printf("multicast send error: %v", err)
	}
}

func (n *Node) broadcastReliable(m *wire.Message, copies int, gap time.Duration) {
	if n.mcast == nil {
		return
	}
	// Every copy carries the same msg_id so receivers' dedup cache drops the extras.
	if m.Payload.MsgID == "" {
		m.Payload.MsgID = n.newMsgID("")
	}
	data := n.encode(m)
	if data == nil {
		return
	}
	if err := n.mcast.SendReliable(data, copies, gap); err != nil {
		n.log.Printf("multicast reliable send error: %v", err)
	}
}

func (n *Node) sendAck(targetID string, addr *net.UDPAddr, msgID string) {
	m := n.buildMessage(wire.KindAck, wire.Payload{AckFor: msgID}, false)
	data := n.encode(m)
	if data == nil {
		return
	}
	if addr == nil {
		addr = n.members.Addr(targetID)
	}
	if addr == nil {
		return
	}
	n.ucast.Send(data, addr)
}

// toElectionPeers adapts membership's view of a peer (which also carries a
// resolved unicast address the election component has no use for) to the
// narrower type election.Election expects.
func toElectionPeers(peers []*membership.Peer) []election.Peer {
	out := make([]election.Peer, len(peers))
	for i, p := range peers {
		out[i] = election.Peer{ID: p.ID, Priority: p.Priority}
	}
	return out
}

// higherElectionPeers returns every known peer with priority higher than
// this node's own, converted for election.Election's use. Passed to
// election.New as its higherPeersFn and called directly wherever a fresh
// Bully round is kicked off (leader failure, a LEAVE from the current
// coordinator).
func (n *Node) higherElectionPeers() []election.Peer {
	return toElectionPeers(n.members.HigherPriority(n.cfg.Priority))
}

// parsePriority recovers an integer priority from a peer's claimed node ID
// for membership bookkeeping; non-numeric IDs fall back to priority 0 and
// rely on the sender's own SenderPriority field instead.
func parsePriority(id string) int {
	p, err := strconv.Atoi(id)
	if err != nil {
		return 0
	}
	return p
}
