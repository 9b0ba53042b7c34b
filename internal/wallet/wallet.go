package wallet

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidState        = errors.New("wallet not active")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("wallet not found")
	ErrNegativeAmount      = errors.New("amount must not be negative")
)

// Status is the lifecycle state of a session wallet. CLOSED and
// EXPIRED are terminal; no balance mutation is permitted after either.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusClosed  Status = "CLOSED"
	StatusExpired Status = "EXPIRED"
)

// Default capability tags granted when a wallet is opened for a match.
var DefaultPermissions = []string{"PLAY_CARDS", "AUTO_FOLD", "RECEIVE_REWARDS"}

// Wallet is a per-player escrow of locked funds for one match. The
// locked amount is fixed at creation; the balance only decreases on
// settlement debits and only increases on the winner's payout credit.
type Wallet struct {
	ID           string
	OwnerID      string
	LockedAmount int64
	Balance      int64
	Permissions  []string
	Status       Status
	CreatedAt    time.Time
	ExpiresAt    time.Time

	mu sync.Mutex
}

// Debit removes amount from the balance. A negative amount is
// rejected; it would credit through the debit path.
func (w *Wallet) Debit(amount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Status != StatusActive {
		return ErrInvalidState
	}
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount > w.Balance {
		return ErrInsufficientBalance
	}
	w.Balance -= amount
	return nil
}

// Credit adds amount to the balance. Only the settlement payout uses
// this, which is the single path by which a balance may exceed the
// original locked amount.
func (w *Wallet) Credit(amount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Status != StatusActive {
		return ErrInvalidState
	}
	if amount < 0 {
		return ErrNegativeAmount
	}
	w.Balance += amount
	return nil
}

// Close finalizes the wallet with the given balance and revokes all
// permissions. Valid from ACTIVE or EXPIRED.
func (w *Wallet) Close(finalBalance int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Status == StatusClosed {
		return ErrInvalidState
	}
	w.Status = StatusClosed
	w.Balance = finalBalance
	w.Permissions = nil
	return nil
}

// Expire transitions an ACTIVE wallet whose TTL has elapsed. Returns
// true only on the transition, so a repeated sweep is a no-op.
func (w *Wallet) Expire(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Status != StatusActive || now.Before(w.ExpiresAt) {
		return false
	}
	w.Status = StatusExpired
	return true
}

// GetStatus returns the current status.
func (w *Wallet) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Status
}

// GetBalance returns the current balance.
func (w *Wallet) GetBalance() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Balance
}

// Snapshot is a consistent copy of a wallet for external reads.
type Snapshot struct {
	ID           string
	OwnerID      string
	LockedAmount int64
	Balance      int64
	Permissions  []string
	Status       Status
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Snapshot returns a consistent copy of the wallet state.
func (w *Wallet) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Snapshot{
		ID:           w.ID,
		OwnerID:      w.OwnerID,
		LockedAmount: w.LockedAmount,
		Balance:      w.Balance,
		Permissions:  append([]string(nil), w.Permissions...),
		Status:       w.Status,
		CreatedAt:    w.CreatedAt,
		ExpiresAt:    w.ExpiresAt,
	}
}

func newWallet(ownerID string, amount int64, perms []string, ttl time.Duration) *Wallet {
	now := time.Now()
	return &Wallet{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		LockedAmount: amount,
		Balance:      amount,
		Permissions:  append([]string(nil), perms...),
		Status:       StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}
