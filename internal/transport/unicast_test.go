package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func newLoopbackUnicast(t *testing.T) *Unicast {
	t.Helper()
	u, err := NewUnicast("127.0.0.1", 0, nil)
	if err != nil {
		t.Fatalf("NewUnicast: %v", err)
	}
	t.Cleanup(func() { u.Close() })
	return u
}

func TestUnicastSendAndServeDelivers(t *testing.T) {
	a := newLoopbackUnicast(t)
	b := newLoopbackUnicast(t)

	received := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, func(data []byte, addr net.Addr) {
		received <- string(data)
	})

	if err := a.Send([]byte("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("received %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestSendAndWaitAckTimesOutWithNoResponse(t *testing.T) {
	a := newLoopbackUnicast(t)
	b := newLoopbackUnicast(t)

	ok := a.SendAndWaitAck(context.Background(), []byte("ping"), b.LocalAddr(), "never-acked", 100*time.Millisecond)
	if ok {
		t.Fatal("expected SendAndWaitAck to time out when nothing acknowledges it")
	}
}

func TestAcknowledgeWakesWaiter(t *testing.T) {
	a := newLoopbackUnicast(t)

	done := make(chan bool, 1)
	go func() {
		done <- a.SendAndWaitAck(context.Background(), []byte("ping"), a.LocalAddr(), "m1", 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	a.Acknowledge("m1")

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected SendAndWaitAck to report success once acknowledged")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendAndWaitAck to return")
	}
}
