// Package election implements the Bully leader-election algorithm:
// priority equals node ID, the highest-priority reachable node wins, and
// ties are impossible by construction (IDs are unique).
package election

import (
	"log"
	"sync"
	"time"
)

// Peer is the minimal view the election component needs of a candidate.
type Peer struct {
	ID       string
	Priority int
}

// Transport is the subset of unicast/multicast sending the election
// component needs, kept narrow so this package has no dependency on
// internal/transport or internal/wire directly — the orchestrator adapts
// its real transports to this interface.
type Transport interface {
	SendElection(to Peer)
	SendOK(to Peer)
	BroadcastCoordinator()
}

// Election runs the Bully state machine for one node.
type Election struct {
	selfID        string
	selfPriority  int
	timeout       time.Duration
	transport     Transport
	onChange      func(coordinatorID string)
	higherPeersFn func() []Peer

	mu          sync.Mutex
	inProgress  bool
	coordinator string
	receivedOK  bool
	okCh        chan struct{}

	log *log.Logger
}

// New constructs an election component. onChange is invoked whenever the
// believed coordinator changes, from whatever goroutine declared victory
// or processed a COORDINATOR message — never while holding e's lock.
// higherPeersFn must return the current set of known peers with priority
// higher than selfPriority; it is called fresh every time this node needs
// to decide whether to campaign, including from the deferred retry timer
// in HandleElection, so a peer that fails between deferral and retry is
// not waited on forever.
func New(selfID string, selfPriority int, timeout time.Duration, t Transport, onChange func(string), higherPeersFn func() []Peer, logger *log.Logger) *Election {
	if logger == nil {
		logger = log.New(log.Writer(), "election: ", log.LstdFlags)
	}
	return &Election{
		selfID:        selfID,
		selfPriority:  selfPriority,
		timeout:       timeout,
		transport:     t,
		onChange:      onChange,
		higherPeersFn: higherPeersFn,
		log:           logger,
	}
}

// StartElection begins a new election round unless one is already in
// flight. Triggered by: a leader-failure callback, the coordinator's own
// LEAVE, startup with no known coordinator, or receiving an ELECTION
// message from a lower-priority peer.
func (e *Election) StartElection(higher []Peer) {
	e.mu.Lock()
	if e.inProgress {
		e.mu.Unlock()
		return
	}
	e.inProgress = true
	e.receivedOK = false
	e.okCh = make(chan struct{}, 1)
	e.mu.Unlock()

	e.log.Printf("node %s starting election, %d higher-priority peers", e.selfID, len(higher))

	if len(higher) == 0 {
		e.declareVictory()
		return
	}

	for _, p := range higher {
		e.transport.SendElection(p)
	}

	go e.waitForOK()
}

func (e *Election) waitForOK() {
	e.mu.Lock()
	ch := e.okCh
	e.mu.Unlock()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case <-ch:
		// Some higher-priority peer answered OK; it will announce
		// COORDINATOR in due course. We stay DEFERRING.
		e.mu.Lock()
		e.inProgress = false
		e.mu.Unlock()
	case <-timer.C:
		e.declareVictory()
	}
}

// HandleElection processes an inbound ELECTION from sender. Per Bully,
// this node only answers OK if its own priority is strictly higher; a
// higher-priority sender is ignored (it will hear nothing and eventually
// declare victory on its own timeout — which is wrong per a naive reading,
// but correct here because an ELECTION is only ever unicast to peers with
// *higher* priority than the sender, so a correctly-behaving sender never
// sends this node an ELECTION unless this node's priority is in fact
// higher).
func (e *Election) HandleElection(sender Peer) {
	if e.selfPriority <= sender.Priority {
		return
	}
	e.transport.SendOK(sender)
	time.AfterFunc(100*time.Millisecond, func() {
		var higher []Peer
		if e.higherPeersFn != nil {
			higher = e.higherPeersFn()
		}
		e.StartElection(higher)
	})
}

// HandleOK processes an inbound OK, deferring this node's own campaign to
// whichever higher-priority peer answered.
func (e *Election) HandleOK() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inProgress || e.receivedOK {
		return
	}
	e.receivedOK = true
	select {
	case e.okCh <- struct{}{}:
	default:
	}
}

// HandleCoordinator processes an inbound COORDINATOR announcement from
// sender, adopting it as the current coordinator and ending any election
// this node had in progress.
func (e *Election) HandleCoordinator(sender Peer) {
	e.mu.Lock()
	changed := e.coordinator != sender.ID
	e.coordinator = sender.ID
	e.inProgress = false
	e.mu.Unlock()

	if changed && e.onChange != nil {
		e.onChange(sender.ID)
	}
}

func (e *Election) declareVictory() {
	e.mu.Lock()
	changed := e.coordinator != e.selfID
	e.coordinator = e.selfID
	e.inProgress = false
	e.mu.Unlock()

	e.log.Printf("node %s declares victory, is now COORDINATOR", e.selfID)
	e.transport.BroadcastCoordinator()

	if changed && e.onChange != nil {
		e.onChange(e.selfID)
	}
}

// Coordinator returns the currently believed coordinator ID, or "" if
// none is known yet.
func (e *Election) Coordinator() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinator
}

// IsCoordinator reports whether this node currently believes itself to be
// the coordinator.
func (e *Election) IsCoordinator() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinator == e.selfID
}

// IsInProgress reports whether an election is currently underway.
func (e *Election) IsInProgress() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inProgress
}

// SetCoordinator forcibly sets the believed coordinator without running an
// election — used when JOIN_RESPONSE/LEDGER_SYNC carries an authoritative
// coordinator_id for a newly-joining node.
func (e *Election) SetCoordinator(id string) {
	e.mu.Lock()
	changed := e.coordinator != id
	e.coordinator = id
	e.mu.Unlock()
	if changed && e.onChange != nil {
		e.onChange(id)
	}
}
