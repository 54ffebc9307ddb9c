// Package ledger implements the per-node energy-credit balance, its
// transaction history, and the pending/completed trade bookkeeping that
// makes the trade protocol idempotent.
//
// The ledger has no opinion about *how* balances should be managed beyond
// what the protocol requires (§1 explicitly keeps balance policy out of
// the core's scope) — it only guarantees that applying the same trade
// twice never double-applies it, and that a rejected sell never mutates
// state.
package ledger

import (
	"sync"
	"time"

	"distributed-energy-ledger/internal/vclock"
)

// TransactionKind distinguishes a credit-decreasing sell from a
// credit-increasing buy.
type TransactionKind string

const (
	Sell TransactionKind = "SELL"
	Buy  TransactionKind = "BUY"
)

// Transaction is one applied, immutable ledger entry.
type Transaction struct {
	Kind          TransactionKind
	Amount        int
	CounterpartyID string
	TradeID       string
	Timestamp     time.Time
	Clock         vclock.Clock
	BalanceAfter  int
}

// PendingTrade is a trade this node has proposed or accepted but not yet
// settled.
type PendingTrade struct {
	Role          TransactionKind
	Amount        int
	CounterpartyID string
	CreatedAt     time.Time
}

// State is the full serializable ledger snapshot exchanged by LEDGER_SYNC,
// JOIN_RESPONSE, and GOSSIP.
type State struct {
	NodeID          string
	Balance         int
	Transactions    []Transaction
	CompletedTrades []string
	PendingTrades   map[string]PendingTrade
	UpdatedAt       time.Time
}

// Ledger is a node's thread-safe view of its own energy-credit balance.
type Ledger struct {
	mu sync.Mutex

	nodeID    string
	minCredit int

	balance      int
	transactions []Transaction
	completed    map[string]bool
	pending      map[string]PendingTrade
	updatedAt    time.Time
}

// New creates a ledger starting at initialBalance, never allowed to drop
// below minCredit.
func New(nodeID string, initialBalance, minCredit int) *Ledger {
	return &Ledger{
		nodeID:    nodeID,
		minCredit: minCredit,
		balance:   initialBalance,
		completed: make(map[string]bool),
		pending:   make(map[string]PendingTrade),
		updatedAt: time.Now(),
	}
}

// Balance returns the current balance.
func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// CanSell reports whether selling amount would keep the balance at or
// above minCredit.
func (l *Ledger) CanSell(amount int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance-amount >= l.minCredit
}

// HasTrade reports whether tradeID is already known, either pending or
// completed — the idempotency check every trade-protocol handler runs
// before acting on an inbound message.
func (l *Ledger) HasTrade(tradeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.completed[tradeID] {
		return true
	}
	_, ok := l.pending[tradeID]
	return ok
}

// AddPendingTrade records a trade this node is a party to but has not yet
// settled.
func (l *Ledger) AddPendingTrade(tradeID string, role TransactionKind, amount int, counterparty string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[tradeID] = PendingTrade{
		Role:          role,
		Amount:        amount,
		CounterpartyID: counterparty,
		CreatedAt:     time.Now(),
	}
}

// GetPendingTrade returns the pending trade for tradeID, if any.
func (l *Ledger) GetPendingTrade(tradeID string) (PendingTrade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pending[tradeID]
	return p, ok
}

// RemovePendingTrade discards a pending trade without settling it — used
// when a TRADE_RESPONSE rejects the proposal.
func (l *Ledger) RemovePendingTrade(tradeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, tradeID)
}

// ExecuteSell settles a SELL of amount to buyer under tradeID. If tradeID
// was already completed this is a no-op that reports success — applying
// the same CONFIRM twice must never double-decrement the balance. The only
// way this fails is insufficient funds re-checked at execution time, which
// reports ok=false and performs no mutation.
func (l *Ledger) ExecuteSell(tradeID, buyer string, amount int, vc vclock.Clock) (ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.completed[tradeID] {
		return true
	}
	if l.balance-amount < l.minCredit {
		return false
	}
	l.balance -= amount
	l.appendLocked(Sell, amount, buyer, tradeID, vc)
	l.completed[tradeID] = true
	delete(l.pending, tradeID)
	return true
}

// ExecuteBuy settles a BUY of amount from seller under tradeID. Buying
// always succeeds (it only ever increases the balance); the same
// idempotency guard applies.
func (l *Ledger) ExecuteBuy(tradeID, seller string, amount int, vc vclock.Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.completed[tradeID] {
		return
	}
	l.balance += amount
	l.appendLocked(Buy, amount, seller, tradeID, vc)
	l.completed[tradeID] = true
	delete(l.pending, tradeID)
}

// ExecutePendingTrade settles whichever side of tradeID this node holds
// pending, dispatching to ExecuteSell or ExecuteBuy by the recorded role.
// Returns ok=false only for a sell that fails its final funds check;
// reports found=false if no such pending trade exists (already settled or
// unknown).
func (l *Ledger) ExecutePendingTrade(tradeID string, vc vclock.Clock) (found, ok bool) {
	l.mu.Lock()
	p, exists := l.pending[tradeID]
	l.mu.Unlock()
	if !exists {
		return false, false
	}
	switch p.Role {
	case Sell:
		return true, l.ExecuteSell(tradeID, p.CounterpartyID, p.Amount, vc)
	case Buy:
		l.ExecuteBuy(tradeID, p.CounterpartyID, p.Amount, vc)
		return true, true
	}
	return false, false
}

// appendLocked must be called with mu held.
func (l *Ledger) appendLocked(kind TransactionKind, amount int, counterparty, tradeID string, vc vclock.Clock) {
	l.transactions = append(l.transactions, Transaction{
		Kind:          kind,
		Amount:        amount,
		CounterpartyID: counterparty,
		TradeID:       tradeID,
		Timestamp:     time.Now(),
		Clock:         vc.Copy(),
		BalanceAfter:  l.balance,
	})
	l.updatedAt = time.Now()
}

// History returns a copy of the transaction log in application order.
func (l *Ledger) History() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, len(l.transactions))
	copy(out, l.transactions)
	return out
}

// GetState returns a full snapshot of this ledger suitable for
// LEDGER_SYNC, JOIN_RESPONSE, or GOSSIP.
func (l *Ledger) GetState() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	completed := make([]string, 0, len(l.completed))
	for id := range l.completed {
		completed = append(completed, id)
	}
	pending := make(map[string]PendingTrade, len(l.pending))
	for id, p := range l.pending {
		pending[id] = p
	}
	txs := make([]Transaction, len(l.transactions))
	copy(txs, l.transactions)

	return State{
		NodeID:          l.nodeID,
		Balance:         l.balance,
		Transactions:    txs,
		CompletedTrades: completed,
		PendingTrades:   pending,
		UpdatedAt:       l.updatedAt,
	}
}

// SyncFromState replaces this ledger's state wholesale with s.
//
// Applied unconditionally regardless of s.NodeID. The Python reference
// this was ported from guards sync_from_state on a node_id match, but
// every call site's own comment insists the received state must always be
// applied "regardless of node_id" — the guard and its call sites
// contradict each other. This port follows the documented intent (always
// apply) rather than the code that appears to never have matched it; see
// DESIGN.md.
func (l *Ledger) SyncFromState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = s.Balance
	l.transactions = append([]Transaction(nil), s.Transactions...)
	l.completed = make(map[string]bool, len(s.CompletedTrades))
	for _, id := range s.CompletedTrades {
		l.completed[id] = true
	}
	l.pending = make(map[string]PendingTrade, len(s.PendingTrades))
	for id, p := range s.PendingTrades {
		l.pending[id] = p
	}
	l.updatedAt = s.UpdatedAt
}

// UpdatedAt returns the timestamp of this ledger's last mutation, used by
// the registry to break ties between concurrent snapshots.
func (l *Ledger) UpdatedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updatedAt
}
