// Package wire defines the on-the-wire message envelope shared by every
// component and its encode/decode via the sonic JSON codec.
//
// Every datagram carries exactly one Message. The envelope is
// self-describing: a receiver decodes Kind first and dispatches on it,
// so optional payload fields absent from the JSON simply decode to their
// zero value rather than causing a parse error. Unknown kinds are not
// rejected by the codec — Decode succeeds and the caller (the
// orchestrator) logs and drops them.
package wire

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"

	"distributed-energy-ledger/internal/vclock"
)

// Kind enumerates every message type exchanged between peers.
type Kind string

const (
	KindHeartbeat     Kind = "HEARTBEAT"
	KindElection      Kind = "ELECTION"
	KindOK            Kind = "OK"
	KindCoordinator   Kind = "COORDINATOR"
	KindJoin          Kind = "JOIN"
	KindJoinResponse  Kind = "JOIN_RESPONSE"
	KindLeave         Kind = "LEAVE"
	KindTradeRequest  Kind = "TRADE_REQUEST"
	KindTradeResponse Kind = "TRADE_RESPONSE"
	KindTradeConfirm  Kind = "TRADE_CONFIRM"
	KindLedgerSync    Kind = "LEDGER_SYNC"
	KindStateRequest  Kind = "STATE_REQUEST"
	KindAck           Kind = "ACK"
	KindGossip        Kind = "GOSSIP"
)

// causalKinds is the set of kinds subject to the vector-clock delivery
// gate. Every other kind is processed in arrival order.
var causalKinds = map[Kind]bool{
	KindTradeRequest: true,
	KindTradeConfirm: true,
}

// IsCausal reports whether k must pass the hold-back buffer's CanDeliver
// check before being handed to its component handler.
func IsCausal(k Kind) bool { return causalKinds[k] }

// MaxDatagramBytes bounds an encoded Message so it fits one UDP datagram
// without IP fragmentation on a typical LAN MTU.
const MaxDatagramBytes = 4096

// Message is the self-describing envelope carried by every datagram.
//
// VectorClock is nil for HEARTBEAT — heartbeats are deliberately excluded
// from causal ordering (see internal/vclock) so heartbeat loss can never
// block trade delivery via the hold-back queue.
type Message struct {
	Kind           Kind         `json:"kind" validate:"required"`
	SenderID       string       `json:"sender_id" validate:"required"`
	SenderPriority int          `json:"sender_priority"`
	VectorClock    vclock.Clock `json:"vector_clock,omitempty"`
	Payload        Payload      `json:"payload"`
	Timestamp      time.Time    `json:"timestamp"`
}

// Payload carries every kind-specific field. Only the fields relevant to
// Kind are populated on the wire; the rest decode to their zero value.
// A single struct (rather than one type per kind plus a type switch) keeps
// the codec symmetric and trivially round-trippable through sonic, at the
// cost of a payload wider than any one message needs — acceptable given
// the 4096-byte datagram budget.
type Payload struct {
	MsgID string `json:"msg_id,omitempty"`

	// Heartbeat
	Balance int `json:"balance,omitempty"`

	// Membership (JOIN / JOIN_RESPONSE / LEAVE)
	KnownNodes   []string             `json:"known_nodes,omitempty"`
	CoordinatorID string              `json:"coordinator_id,omitempty"`
	ClockState   vclock.Clock         `json:"clock_state,omitempty"`
	LedgerState  *LedgerSnapshot      `json:"ledger_state,omitempty"`

	// Trade protocol
	TradeID       string `json:"trade_id,omitempty"`
	Amount        int    `json:"amount,omitempty" validate:"omitempty,gt=0"`
	TradeType     string `json:"trade_type,omitempty" validate:"omitempty,oneof=buy sell"`
	TargetID      string `json:"target_id,omitempty"`
	Accepted      bool   `json:"accepted,omitempty"`
	Reason        string `json:"reason,omitempty"`
	BuyerID       string `json:"buyer_id,omitempty"`
	SellerID      string `json:"seller_id,omitempty"`
	Success       bool   `json:"success,omitempty"`

	// LEDGER_SYNC / GOSSIP / STATE_REQUEST response
	LedgerSnapshot *LedgerSnapshot `json:"ledger_snapshot,omitempty"`

	// ACK
	AckFor string `json:"ack_for,omitempty"`
}

// Transaction is one applied ledger entry, part of a LedgerSnapshot.
type Transaction struct {
	Kind          string       `json:"kind"`
	Amount        int          `json:"amount"`
	CounterpartyID string      `json:"counterparty_id"`
	TradeID       string       `json:"trade_id"`
	Timestamp     time.Time    `json:"timestamp"`
	Clock         vclock.Clock `json:"clock"`
	BalanceAfter  int          `json:"balance_after"`
}

// PendingTrade mirrors one in-flight trade a node is tracking.
type PendingTrade struct {
	Role          string    `json:"role"`
	Amount        int       `json:"amount"`
	CounterpartyID string   `json:"counterparty_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// LedgerSnapshot is the full-replacement state blob exchanged by
// LEDGER_SYNC, JOIN_RESPONSE, GOSSIP, and STATE_REQUEST responses.
type LedgerSnapshot struct {
	NodeID          string                  `json:"node_id"`
	Balance         int                     `json:"balance"`
	Transactions    []Transaction           `json:"transactions"`
	CompletedTrades []string                `json:"completed_trades"`
	PendingTrades   map[string]PendingTrade `json:"pending_trades,omitempty"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

var codec = sonic.ConfigDefault

var validate = validator.New()

// Encode serializes m to JSON bytes via sonic. Callers must keep the
// result within MaxDatagramBytes; neither the wire codec nor the
// transports enforce this limit.
func Encode(m *Message) ([]byte, error) {
	b, err := codec.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Kind, err)
	}
	return b, nil
}

// Decode parses raw datagram bytes into a Message and validates required
// fields. Decode succeeds even for a Kind this codec has never heard of —
// rejecting unknown kinds is the orchestrator's job, not the codec's, so
// that wire compatibility can evolve without a hard-coded enum here.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := codec.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("wire: validate: %w", err)
	}
	return &m, nil
}
