package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Receipt is the opaque proof of a completed ledger transfer.
type Receipt struct {
	TxID        string    `json:"txId"`
	MatchID     string    `json:"matchId"`
	RecipientID string    `json:"recipientId"`
	Amount      int64     `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Ledger is the external settlement service. Transfer must be safe to
// call twice with the same idempotency key: the second call returns
// the original receipt without moving funds again.
type Ledger interface {
	Transfer(ctx context.Context, matchID, recipientID string, amount int64, idempotencyKey string) (Receipt, error)
}

// MemoryLedger is an in-process Ledger for development and tests. It
// honors idempotency keys and counts actual transfers.
type MemoryLedger struct {
	mu       sync.Mutex
	receipts map[string]Receipt
	// FailNext makes the next new transfer fail, for retry testing.
	FailNext bool

	transfers int
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{receipts: make(map[string]Receipt)}
}

// Transfer implements Ledger.
func (l *MemoryLedger) Transfer(_ context.Context, matchID, recipientID string, amount int64, idempotencyKey string) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.receipts[idempotencyKey]; ok {
		return r, nil
	}
	if l.FailNext {
		l.FailNext = false
		return Receipt{}, fmt.Errorf("ledger unavailable")
	}

	r := Receipt{
		TxID:        "0x" + uuid.NewString(),
		MatchID:     matchID,
		RecipientID: recipientID,
		Amount:      amount,
		Timestamp:   time.Now(),
	}
	l.receipts[idempotencyKey] = r
	l.transfers++
	return r, nil
}

// TransferCount reports how many funds movements actually executed.
func (l *MemoryLedger) TransferCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfers
}
