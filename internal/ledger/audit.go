package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditTrail is a best-effort, append-only record of applied transactions,
// written for operator forensics.
//
// This is adapted from the reference module's write-ahead log
// (internal/store/wal.go), which existed to make every mutation durable
// before it touched memory, and whose entries were replayed to rebuild
// state on restart. Replaying anything on restart is exactly what this
// system's core forbids (§6 Persistence: a restarting node always
// recovers state from the coordinator, never from local disk) — so this
// trail is write-only. Nothing ever reads it back; a missing or corrupt
// audit file has zero effect on correctness. It exists purely so an
// operator can later answer "what did this node actually apply, in what
// order" without cross-referencing every peer's logs.
type AuditTrail struct {
	mu   sync.Mutex
	file *os.File
}

// auditEntry is one line of the audit file.
type auditEntry struct {
	AppliedAt   time.Time       `json:"applied_at"`
	Kind        TransactionKind `json:"kind"`
	Amount      int             `json:"amount"`
	Counterparty string         `json:"counterparty_id"`
	TradeID     string          `json:"trade_id"`
	BalanceAfter int            `json:"balance_after"`
}

// OpenAuditTrail opens (creating if necessary) an append-only audit file
// at path. An empty path disables the trail entirely — a nil *AuditTrail
// is returned, whose Record and Close are no-ops — since it is purely
// diagnostic.
func OpenAuditTrail(path string) (*AuditTrail, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &AuditTrail{file: f}, nil
}

// Record appends one applied transaction to the trail. Failures are
// swallowed by the caller (this is diagnostic-only, never allowed to
// affect protocol behavior) — Record itself returns the error so the
// caller can choose to log it.
func (a *AuditTrail) Record(tx Transaction) error {
	if a == nil {
		return nil
	}
	entry := auditEntry{
		AppliedAt:   time.Now(),
		Kind:        tx.Kind,
		Amount:      tx.Amount,
		Counterparty: tx.CounterpartyID,
		TradeID:     tx.TradeID,
		BalanceAfter: tx.BalanceAfter,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.file.Write(line)
	return err
}

// Close releases the underlying file handle.
func (a *AuditTrail) Close() error {
	if a == nil {
		return nil
	}
	return a.file.Close()
}

// DumpRegistrySnapshot atomically writes a diagnostic dump of states to
// path, adapted from the reference's SnapshotManager.Save atomic-rename
// pattern (write to a .tmp file, then os.Rename). Like AuditTrail, this is
// never read back by this process — it's a point-in-time debugging
// artifact for whoever is coordinator when it runs.
func DumpRegistrySnapshot(path string, states map[string]State) error {
	if path == "" {
		return nil
	}
	tmp := path + ".tmp"
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: marshal registry snapshot: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("audit: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("audit: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}
