package wire

import (
	"testing"
	"time"

	"distributed-energy-ledger/internal/vclock"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := &Message{
		Kind:           KindTradeRequest,
		SenderID:       "1",
		SenderPriority: 1,
		VectorClock:    vclock.Clock{"1": 2, "2": 1},
		Payload: Payload{
			TradeID:   "abc123",
			Amount:    50,
			TradeType: "sell",
			TargetID:  "2",
		},
		Timestamp: time.Now().UTC(),
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != msg.Kind || got.SenderID != msg.SenderID {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, msg)
	}
	if got.Payload.TradeID != msg.Payload.TradeID || got.Payload.Amount != msg.Payload.Amount {
		t.Fatalf("payload round-trip mismatch: got %+v", got.Payload)
	}
	if got.VectorClock["2"] != 1 {
		t.Fatalf("vector clock round-trip mismatch: got %v", got.VectorClock)
	}
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	if _, err := Decode([]byte(`{}`)); err == nil {
		t.Fatal("expected Decode to reject a message with no kind or sender_id")
	}
}

func TestDecodeRejectsInvalidTradeType(t *testing.T) {
	msg := &Message{
		Kind:     KindTradeRequest,
		SenderID: "1",
		Payload:  Payload{TradeType: "swap"},
	}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(data); err == nil {
		t.Fatal("expected Decode to reject an out-of-range trade_type")
	}
}

func TestDecodeAcceptsUnknownKind(t *testing.T) {
	msg := &Message{Kind: Kind("SOMETHING_NEW"), SenderID: "1"}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode should not reject an unrecognized kind: %v", err)
	}
	if got.Kind != Kind("SOMETHING_NEW") {
		t.Fatalf("got kind %q", got.Kind)
	}
}

func TestIsCausal(t *testing.T) {
	if !IsCausal(KindTradeRequest) {
		t.Error("TRADE_REQUEST should be causal")
	}
	if !IsCausal(KindTradeConfirm) {
		t.Error("TRADE_CONFIRM should be causal")
	}
	if IsCausal(KindHeartbeat) {
		t.Error("HEARTBEAT should not be causal")
	}
	if IsCausal(KindGossip) {
		t.Error("GOSSIP should not be causal")
	}
}
