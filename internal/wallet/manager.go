package wallet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager owns the session wallet lifecycle across all matches.
type Manager struct {
	wallets map[string]*Wallet
	mu      sync.RWMutex
	ttl     time.Duration
	logger  *zap.Logger
}

// NewManager creates a wallet manager. ttl is applied to every wallet
// opened without an explicit override.
func NewManager(ttl time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		wallets: make(map[string]*Wallet),
		ttl:     ttl,
		logger:  logger,
	}
}

// Open creates an ACTIVE wallet locking the given amount.
func (m *Manager) Open(ownerID string, amount int64, perms []string, ttl time.Duration) *Wallet {
	if ttl <= 0 {
		ttl = m.ttl
	}
	if len(perms) == 0 {
		perms = DefaultPermissions
	}

	w := newWallet(ownerID, amount, perms, ttl)

	m.mu.Lock()
	m.wallets[w.ID] = w
	m.mu.Unlock()

	m.logger.Info("session wallet opened",
		zap.String("wallet_id", w.ID),
		zap.String("owner", ownerID),
		zap.Int64("locked_amount", amount),
		zap.Duration("ttl", ttl),
	)
	return w
}

// Get retrieves a wallet by id.
func (m *Manager) Get(walletID string) (*Wallet, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[walletID]
	return w, ok
}

// Release closes a wallet at its current balance and drops it from the
// manager. Used when a player leaves a WAITING lobby: the lock is
// returned untouched.
func (m *Manager) Release(walletID string) error {
	m.mu.Lock()
	w, ok := m.wallets[walletID]
	delete(m.wallets, walletID)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if err := w.Close(w.GetBalance()); err != nil {
		return err
	}
	m.logger.Info("session wallet released",
		zap.String("wallet_id", walletID),
		zap.String("owner", w.OwnerID),
	)
	return nil
}

// SweepExpired periodically expires wallets past their TTL and reports
// each expired owner through onExpire. The callback must not block; it
// is expected to enqueue a forfeit on the owning match rather than
// mutate match state directly.
func (m *Manager) SweepExpired(ctx context.Context, interval time.Duration, onExpire func(walletID, ownerID string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now, onExpire)
		}
	}
}

func (m *Manager) sweep(now time.Time, onExpire func(walletID, ownerID string)) {
	m.mu.RLock()
	candidates := make([]*Wallet, 0)
	for _, w := range m.wallets {
		candidates = append(candidates, w)
	}
	m.mu.RUnlock()

	for _, w := range candidates {
		if w.Expire(now) {
			m.logger.Info("session wallet expired",
				zap.String("wallet_id", w.ID),
				zap.String("owner", w.OwnerID),
			)
			if onExpire != nil {
				onExpire(w.ID, w.OwnerID)
			}
		}
	}
}

// ActiveCount returns the number of wallets still ACTIVE.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, w := range m.wallets {
		if w.GetStatus() == StatusActive {
			count++
		}
	}
	return count
}
