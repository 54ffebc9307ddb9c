package orchestrator

import (
	"testing"
	"time"
)

func TestOnNodeFailureDropsMembership(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	n.members.Join("2", 2, nil)
	n.onNodeFailure("2")
	if n.members.Known("2") {
		t.Fatal("expected a failed peer to be dropped from membership")
	}
}

func TestOnLeaderFailureStartsElectionAgainstHigherPeers(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	n.members.Join("2", 2, nil)
	n.onLeaderFailure()

	waitUntilTrue(t, func() bool { return !n.elect.IsInProgress() })
	if !n.elect.IsCoordinator() {
		t.Fatal("expected self to eventually win since the noop transport never answers OK/ELECTION")
	}
}

func TestOnCoordinatorChangeSelfTriggersBootstrap(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	n.members.Join("2", 2, nil)
	n.onCoordinatorChange("1")

	s, ok := n.reg.Get("1")
	if !ok || s.Balance != 100 {
		t.Fatalf("expected bootstrapRegistry to seed the registry with self's state, got %+v, %v", s, ok)
	}
}

func TestOnCoordinatorChangeOtherNodeDoesNotBootstrap(t *testing.T) {
	n := newTestNode("1", 1, 100, 0)
	n.onCoordinatorChange("2")
	if _, ok := n.reg.Get("1"); ok {
		t.Fatal("expected no registry bootstrap when another node becomes coordinator")
	}
}

func waitUntilTrue(t *testing.T, cond func() bool) {
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
