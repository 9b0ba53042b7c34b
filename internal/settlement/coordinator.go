package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/lasthand-os/lasthand-server/internal/game"
	"github.com/lasthand-os/lasthand-server/internal/identity"
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap"
)

var (
	ErrInvalidState   = errors.New("match is not settleable")
	ErrAlreadySettled = errors.New("match settled under a different state hash")
	ErrNotFound       = errors.New("no settlement for match")
)

// MatchResult is the persisted outcome of a settled match.
type MatchResult struct {
	MatchID        string        `json:"matchId"`
	WinnerID       string        `json:"winnerId"`
	WinnerPayout   int64         `json:"winnerPayout"`
	Rounds         []game.Result `json:"rounds"`
	FinalStateHash string        `json:"finalStateHash"`
	Receipt        Receipt       `json:"receipt"`
}

// ResultSink is the append-only store for match results. Persistence
// is an external concern; a nil sink is valid.
type ResultSink interface {
	SaveResult(ctx context.Context, r MatchResult) error
}

// Coordinator executes the one-time payout for completed matches. The
// final state hash doubles as the idempotency key: settling the same
// match twice performs exactly one ledger transfer and returns the
// cached result the second time.
type Coordinator struct {
	ledger   Ledger
	wallets  *wallet.Manager
	sink     ResultSink
	profiles identity.ProfileStore
	logger   *zap.Logger

	mu      sync.Mutex
	results map[string]MatchResult
	pending map[string]match.Completed
	locks   map[string]*sync.Mutex
}

// NewCoordinator creates a settlement coordinator. sink and profiles
// may be nil.
func NewCoordinator(ledger Ledger, wallets *wallet.Manager, sink ResultSink, profiles identity.ProfileStore, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		ledger:   ledger,
		wallets:  wallets,
		sink:     sink,
		profiles: profiles,
		logger:   logger,
		results:  make(map[string]MatchResult),
		pending:  make(map[string]match.Completed),
		locks:    make(map[string]*sync.Mutex),
	}
}

// matchLock serializes settlement per match without blocking other
// matches on the slow ledger call.
func (c *Coordinator) matchLock(matchID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[matchID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[matchID] = l
	}
	return l
}

// Settle pays the winner and closes every participant wallet. The
// ledger transfer happens before any wallet mutation, so a ledger
// failure leaves everything retryable with no partial debit.
func (c *Coordinator) Settle(ctx context.Context, completed match.Completed) (MatchResult, error) {
	if completed.WinnerID == "" || completed.FinalStateHash == "" {
		return MatchResult{}, ErrInvalidState
	}

	l := c.matchLock(completed.MatchID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	if cached, ok := c.results[completed.MatchID]; ok {
		c.mu.Unlock()
		if cached.FinalStateHash != completed.FinalStateHash {
			return MatchResult{}, ErrAlreadySettled
		}
		return cached, nil
	}
	c.mu.Unlock()

	payout := completed.PrizePool
	receipt, err := c.ledger.Transfer(ctx, completed.MatchID, completed.WinnerID, payout, completed.FinalStateHash)
	if err != nil {
		c.mu.Lock()
		c.pending[completed.MatchID] = completed
		c.mu.Unlock()
		c.logger.Error("ledger transfer failed, settlement pending",
			zap.String("match_id", completed.MatchID),
			zap.Error(err),
		)
		return MatchResult{}, err
	}

	for _, p := range completed.Players {
		c.closeWallet(completed, p, payout)
	}
	c.recordProfiles(ctx, completed, payout)

	result := MatchResult{
		MatchID:        completed.MatchID,
		WinnerID:       completed.WinnerID,
		WinnerPayout:   payout,
		Rounds:         completed.History,
		FinalStateHash: completed.FinalStateHash,
		Receipt:        receipt,
	}

	c.mu.Lock()
	c.results[completed.MatchID] = result
	delete(c.pending, completed.MatchID)
	c.mu.Unlock()

	if c.sink != nil {
		if err := c.sink.SaveResult(ctx, result); err != nil {
			c.logger.Error("failed to persist match result",
				zap.String("match_id", completed.MatchID),
				zap.Error(err),
			)
		}
	}

	c.logger.Info("match settled",
		zap.String("match_id", completed.MatchID),
		zap.String("winner", completed.WinnerID),
		zap.Int64("payout", payout),
		zap.String("tx_id", receipt.TxID),
	)
	return result, nil
}

// closeWallet finalizes one participant's session wallet. The winner
// closes at original balance plus payout; losers close with their
// entry fee spent. Expired wallets skip the mutation path and close at
// the computed final directly.
func (c *Coordinator) closeWallet(completed match.Completed, p match.CompletedPlayer, payout int64) {
	w, ok := c.wallets.Get(p.WalletID)
	if !ok {
		c.logger.Warn("wallet missing at settlement",
			zap.String("match_id", completed.MatchID),
			zap.String("player", p.ID),
		)
		return
	}

	if p.ID == completed.WinnerID {
		if err := w.Credit(payout); err != nil && !errors.Is(err, wallet.ErrInvalidState) {
			c.logger.Warn("payout credit failed", zap.String("player", p.ID), zap.Error(err))
		}
		final := w.GetBalance()
		if w.GetStatus() == wallet.StatusExpired {
			final += payout
		}
		if err := w.Close(final); err != nil {
			c.logger.Warn("wallet close failed", zap.String("player", p.ID), zap.Error(err))
		}
		return
	}

	debit := completed.EntryFee
	if bal := w.GetBalance(); debit > bal {
		debit = bal
	}
	if err := w.Debit(debit); err != nil && !errors.Is(err, wallet.ErrInvalidState) {
		c.logger.Warn("entry fee debit failed", zap.String("player", p.ID), zap.Error(err))
	}
	final := w.GetBalance()
	if w.GetStatus() == wallet.StatusExpired {
		final -= debit
		if final < 0 {
			final = 0
		}
	}
	if err := w.Close(final); err != nil {
		c.logger.Warn("wallet close failed", zap.String("player", p.ID), zap.Error(err))
	}
}

func (c *Coordinator) recordProfiles(ctx context.Context, completed match.Completed, payout int64) {
	if c.profiles == nil {
		return
	}
	for _, p := range completed.Players {
		won := p.ID == completed.WinnerID
		var earnings int64
		if won {
			earnings = payout
		}
		if err := c.profiles.RecordMatch(ctx, p.ID, won, earnings, completed.EntryFee); err != nil {
			c.logger.Warn("profile update failed",
				zap.String("player", p.ID),
				zap.Error(err),
			)
		}
	}
}

// Retry re-runs a settlement that failed at the ledger. Returns the
// cached result when it already succeeded.
func (c *Coordinator) Retry(ctx context.Context, matchID string) (MatchResult, error) {
	c.mu.Lock()
	if cached, ok := c.results[matchID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	completed, ok := c.pending[matchID]
	c.mu.Unlock()

	if !ok {
		return MatchResult{}, ErrNotFound
	}
	return c.Settle(ctx, completed)
}

// Result returns the settled result for a match, if any.
func (c *Coordinator) Result(matchID string) (MatchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[matchID]
	return r, ok
}
