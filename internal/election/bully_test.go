package election

import (
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu           sync.Mutex
	electionsSent []Peer
	oksSent       []Peer
	coordinatorBroadcasts int
}

func (f *fakeTransport) SendElection(to Peer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.electionsSent = append(f.electionsSent, to)
}

func (f *fakeTransport) SendOK(to Peer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oksSent = append(f.oksSent, to)
}

func (f *fakeTransport) BroadcastCoordinator() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.coordinatorBroadcasts++
}

func (f *fakeTransport) coordinatorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coordinatorBroadcasts
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestStartElectionNoHigherPeersDeclaresVictoryImmediately(t *testing.T) {
	tr := &fakeTransport{}
	var gotCoordinator string
	e := New("3", 3, 200*time.Millisecond, tr, func(id string) { gotCoordinator = id }, nil, nil)

	e.StartElection(nil)

	if !e.IsCoordinator() {
		t.Fatal("expected self to declare victory with no higher peers")
	}
	if tr.coordinatorCount() != 1 {
		t.Fatalf("expected one COORDINATOR broadcast, got %d", tr.coordinatorCount())
	}
	if gotCoordinator != "3" {
		t.Fatalf("onChange called with %q, want \"3\"", gotCoordinator)
	}
}

func TestStartElectionSendsToHigherPeers(t *testing.T) {
	tr := &fakeTransport{}
	e := New("1", 1, 5*time.Second, tr, nil, nil, nil)

	e.StartElection([]Peer{{ID: "2", Priority: 2}, {ID: "3", Priority: 3}})

	tr.mu.Lock()
	n := len(tr.electionsSent)
	tr.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected ELECTION sent to 2 higher peers, got %d", n)
	}
	if !e.IsInProgress() {
		t.Fatal("expected election to be in progress while awaiting OK")
	}
}

func TestStartElectionTimesOutAndDeclaresVictory(t *testing.T) {
	tr := &fakeTransport{}
	e := New("2", 2, 50*time.Millisecond, tr, nil, nil, nil)
	e.StartElection([]Peer{{ID: "3", Priority: 3}})

	waitUntil(t, func() bool { return e.IsCoordinator() })
	if tr.coordinatorCount() != 1 {
		t.Fatalf("expected a COORDINATOR broadcast after timeout, got %d", tr.coordinatorCount())
	}
}

func TestHandleOKDefersOwnCampaign(t *testing.T) {
	tr := &fakeTransport{}
	e := New("1", 1, 300*time.Millisecond, tr, nil, nil, nil)
	e.StartElection([]Peer{{ID: "2", Priority: 2}})
	e.HandleOK()

	waitUntil(t, func() bool { return !e.IsInProgress() })
	if e.IsCoordinator() {
		t.Fatal("should not declare victory after receiving OK")
	}
}

func TestHandleElectionAnswersOnlyWhenHigherPriority(t *testing.T) {
	tr := &fakeTransport{}
	e := New("3", 3, time.Second, tr, nil, nil, nil)
	e.HandleElection(Peer{ID: "1", Priority: 1})

	waitUntil(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.oksSent) == 1
	})

	tr2 := &fakeTransport{}
	e2 := New("1", 1, time.Second, tr2, nil, nil, nil)
	e2.HandleElection(Peer{ID: "3", Priority: 3})
	time.Sleep(50 * time.Millisecond)
	tr2.mu.Lock()
	defer tr2.mu.Unlock()
	if len(tr2.oksSent) != 0 {
		t.Fatal("a lower-priority node must never answer OK to a higher-priority sender")
	}
}

func TestHandleElectionDeferralRecomputesHigherPeersOnRetry(t *testing.T) {
	// Node 2 answers an ELECTION from lower-priority node 1 with OK and
	// schedules its own campaign 100ms later, when node 3 is its only higher
	// peer. While that timer is pending, node 3 is declared gone and a
	// still-higher node 4 shows up in its place — the retry must campaign
	// against node 4, not blindly re-declare victory as if no higher peer
	// existed.
	tr := &fakeTransport{}
	var higher []Peer
	var mu sync.Mutex
	e := New("2", 2, time.Second, tr, nil, func() []Peer {
		mu.Lock()
		defer mu.Unlock()
		return higher
	}, nil)

	mu.Lock()
	higher = []Peer{{ID: "3", Priority: 3}}
	mu.Unlock()
	e.HandleElection(Peer{ID: "1", Priority: 1})

	mu.Lock()
	higher = []Peer{{ID: "4", Priority: 4}}
	mu.Unlock()

	waitUntil(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.electionsSent) == 1
	})
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.electionsSent[0].ID != "4" {
		t.Fatalf("expected the retry to campaign against node 4 (recomputed), got %+v", tr.electionsSent[0])
	}
	if e.IsCoordinator() {
		t.Fatal("must not declare victory while a higher-priority peer is still known")
	}
}

func TestHandleCoordinatorAdoptsAndFiresOnChange(t *testing.T) {
	tr := &fakeTransport{}
	var seen []string
	e := New("1", 1, time.Second, tr, func(id string) { seen = append(seen, id) }, nil, nil)

	e.HandleCoordinator(Peer{ID: "5", Priority: 5})
	if e.Coordinator() != "5" {
		t.Fatalf("Coordinator() = %q, want 5", e.Coordinator())
	}
	if e.IsCoordinator() {
		t.Fatal("self should not be coordinator")
	}
	if len(seen) != 1 || seen[0] != "5" {
		t.Fatalf("onChange calls = %v, want [5]", seen)
	}

	// Same coordinator announced again must not re-fire onChange.
	e.HandleCoordinator(Peer{ID: "5", Priority: 5})
	if len(seen) != 1 {
		t.Fatalf("onChange should not re-fire for an unchanged coordinator, got %v", seen)
	}
}

func TestSetCoordinatorForcesWithoutElection(t *testing.T) {
	tr := &fakeTransport{}
	var seen string
	e := New("1", 1, time.Second, tr, func(id string) { seen = id }, nil, nil)
	e.SetCoordinator("7")
	if e.Coordinator() != "7" {
		t.Fatalf("Coordinator() = %q, want 7", e.Coordinator())
	}
	if seen != "7" {
		t.Fatalf("onChange = %q, want 7", seen)
	}
	if tr.coordinatorCount() != 0 {
		t.Fatal("SetCoordinator must not broadcast COORDINATOR")
	}
}
