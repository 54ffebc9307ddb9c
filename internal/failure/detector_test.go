package failure

import (
	"sync"
	"testing"
	"time"
)

func TestOneMissedWindowOnlySuspects(t *testing.T) {
	d := New(time.Second, nil, nil, nil)
	now := time.Now()
	d.AddNode("2", now)
	d.Check(now.Add(2*time.Second), true)
	if !d.IsAlive("2") {
		t.Fatal("expected node to still be alive/suspected after one missed window")
	}
}

func TestCheckPeersRequiresTwoMissedWindowsToFail(t *testing.T) {
	var failedIDs []string
	var mu sync.Mutex
	onFail := func(id string) {
		mu.Lock()
		defer mu.Unlock()
		failedIDs = append(failedIDs, id)
	}

	d := New(time.Second, onFail, nil, nil)
	start := time.Now()
	d.AddNode("2", start)

	// First check past the timeout: suspected, not yet failed.
	d.Check(start.Add(2*time.Second), true)
	if !d.IsAlive("2") {
		t.Fatal("node should still be alive (suspected) after first missed window")
	}
	mu.Lock()
	if len(failedIDs) != 0 {
		mu.Unlock()
		t.Fatal("onNodeFailure should not fire after only one missed window")
	}
	mu.Unlock()

	// Second consecutive check past the timeout, no heartbeat recorded in between: failed.
	d.Check(start.Add(4*time.Second), true)
	if d.IsAlive("2") {
		t.Fatal("node should be failed after two consecutive missed windows")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(failedIDs) != 1 || failedIDs[0] != "2" {
		t.Fatalf("expected onNodeFailure(2) to fire once, got %v", failedIDs)
	}
}

func TestRecordHeartbeatExoneratesASuspectedNode(t *testing.T) {
	d := New(time.Second, nil, nil, nil)
	start := time.Now()
	d.AddNode("2", start)
	d.Check(start.Add(2*time.Second), true) // now suspected

	d.RecordHeartbeat("2", start.Add(2100*time.Millisecond))
	d.Check(start.Add(3*time.Second), true) // within timeout of the fresh heartbeat
	if !d.IsAlive("2") {
		t.Fatal("a fresh heartbeat should clear suspicion and keep the node alive")
	}
}

func TestLeaderFailureFiresOnlyForNonLeader(t *testing.T) {
	var leaderFailures int
	d := New(time.Second, nil, func() { leaderFailures++ }, nil)
	start := time.Now()
	d.SetLeader("1", start)

	// Self is leader: Check must skip the leader-ack timeline entirely.
	d.Check(start.Add(10*time.Second), true)
	if leaderFailures != 0 {
		t.Fatalf("leader failure should not fire when checking node is itself leader, got %d", leaderFailures)
	}

	d.Check(start.Add(20*time.Second), false) // suspected
	d.Check(start.Add(30*time.Second), false) // failed
	if leaderFailures != 1 {
		t.Fatalf("expected exactly one onLeaderFailure call, got %d", leaderFailures)
	}
}

func TestRecordLeaderAckIgnoresStaleLeaderID(t *testing.T) {
	d := New(time.Second, nil, nil, nil)
	start := time.Now()
	d.SetLeader("1", start)
	// An ack naming a node that isn't the current leader must be ignored.
	d.RecordLeaderAck("someone-else", start.Add(9500*time.Millisecond))
	d.Check(start.Add(10*time.Second), false)
	// Leader "1" should be suspected on its own stale clock, not refreshed
	// by the irrelevant ack (which would have kept it within the timeout).
	d.leaderMu.Lock()
	st := d.leaderState
	d.leaderMu.Unlock()
	if st != suspected {
		t.Fatalf("leader state = %d, want suspected (%d)", st, suspected)
	}
}

func TestIsAliveFalseForUnknownNode(t *testing.T) {
	d := New(time.Second, nil, nil, nil)
	if d.IsAlive("ghost") {
		t.Fatal("an untracked node id should never report alive")
	}
}

func TestRemoveNodeStopsTracking(t *testing.T) {
	d := New(time.Second, nil, nil, nil)
	now := time.Now()
	d.AddNode("2", now)
	d.RemoveNode("2")
	if d.IsAlive("2") {
		t.Fatal("a removed node should no longer report alive")
	}
}
