package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/lasthand-os/lasthand-server/internal/identity"
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedMatch struct {
	won      bool
	earnings int64
	fee      int64
}

type fakeProfiles struct {
	records map[string]recordedMatch
}

func (f *fakeProfiles) Get(_ context.Context, playerID string) (identity.Profile, error) {
	return identity.Profile{PlayerID: playerID}, nil
}

func (f *fakeProfiles) RecordMatch(_ context.Context, playerID string, won bool, earnings, entryFee int64) error {
	if f.records == nil {
		f.records = make(map[string]recordedMatch)
	}
	f.records[playerID] = recordedMatch{won: won, earnings: earnings, fee: entryFee}
	return nil
}

type settlementFixture struct {
	ledger   *MemoryLedger
	wallets  *wallet.Manager
	profiles *fakeProfiles
	coord    *Coordinator

	completed match.Completed
	byPlayer  map[string]*wallet.Wallet
}

func newFixture(t *testing.T) *settlementFixture {
	t.Helper()

	f := &settlementFixture{
		ledger:   NewMemoryLedger(),
		wallets:  wallet.NewManager(time.Hour, zap.NewNop()),
		profiles: &fakeProfiles{},
		byPlayer: make(map[string]*wallet.Wallet),
	}
	f.coord = NewCoordinator(f.ledger, f.wallets, nil, f.profiles, zap.NewNop())

	const fee = 10
	ids := []string{"p1", "p2", "p3", "p4"}
	players := make([]match.CompletedPlayer, 0, len(ids))
	for _, id := range ids {
		w := f.wallets.Open(id, fee, nil, 0)
		f.byPlayer[id] = w
		players = append(players, match.CompletedPlayer{ID: id, WalletID: w.ID})
	}

	f.completed = match.Completed{
		MatchID:        "match-1",
		WinnerID:       "p2",
		EntryFee:       fee,
		PrizePool:      fee * int64(len(ids)),
		Players:        players,
		FinalStateHash: "a1b2c3",
	}
	return f
}

func TestSettlePaysWinnerAndClosesWallets(t *testing.T) {
	f := newFixture(t)

	result, err := f.coord.Settle(context.Background(), f.completed)
	require.NoError(t, err)

	assert.Equal(t, "p2", result.WinnerID)
	assert.Equal(t, int64(40), result.WinnerPayout)
	assert.Equal(t, int64(40), result.Receipt.Amount)
	assert.Equal(t, "p2", result.Receipt.RecipientID)
	assert.Equal(t, 1, f.ledger.TransferCount())

	// Winner closes at entry fee plus payout, losers at zero.
	for id, w := range f.byPlayer {
		snap := w.Snapshot()
		assert.Equal(t, wallet.StatusClosed, snap.Status, "wallet %s", id)
		if id == "p2" {
			assert.Equal(t, int64(50), snap.Balance)
		} else {
			assert.Equal(t, int64(0), snap.Balance)
		}
	}
}

func TestSettleTwiceTransfersOnce(t *testing.T) {
	f := newFixture(t)

	first, err := f.coord.Settle(context.Background(), f.completed)
	require.NoError(t, err)
	second, err := f.coord.Settle(context.Background(), f.completed)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.ledger.TransferCount())

	cached, ok := f.coord.Result("match-1")
	require.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestSettleRejectsDivergentStateHash(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Settle(context.Background(), f.completed)
	require.NoError(t, err)

	forged := f.completed
	forged.FinalStateHash = "deadbeef"
	_, err = f.coord.Settle(context.Background(), forged)
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.Equal(t, 1, f.ledger.TransferCount())
}

func TestSettleRequiresWinnerAndHash(t *testing.T) {
	f := newFixture(t)

	noWinner := f.completed
	noWinner.WinnerID = ""
	_, err := f.coord.Settle(context.Background(), noWinner)
	assert.ErrorIs(t, err, ErrInvalidState)

	noHash := f.completed
	noHash.FinalStateHash = ""
	_, err = f.coord.Settle(context.Background(), noHash)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, 0, f.ledger.TransferCount())
}

func TestLedgerFailureLeavesWalletsUntouchedThenRetries(t *testing.T) {
	f := newFixture(t)

	f.ledger.FailNext = true
	_, err := f.coord.Settle(context.Background(), f.completed)
	require.Error(t, err)
	assert.Equal(t, 0, f.ledger.TransferCount())

	// No partial debit: every wallet is still active at full balance.
	for id, w := range f.byPlayer {
		snap := w.Snapshot()
		assert.Equal(t, wallet.StatusActive, snap.Status, "wallet %s", id)
		assert.Equal(t, int64(10), snap.Balance, "wallet %s", id)
	}

	result, err := f.coord.Retry(context.Background(), "match-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.WinnerPayout)
	assert.Equal(t, 1, f.ledger.TransferCount())

	// Retry after success returns the cached result.
	again, err := f.coord.Retry(context.Background(), "match-1")
	require.NoError(t, err)
	assert.Equal(t, result, again)
	assert.Equal(t, 1, f.ledger.TransferCount())
}

func TestRetryUnknownMatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Retry(context.Background(), "no-such-match")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettleClosesExpiredWinnerWallet(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.byPlayer["p2"].Expire(time.Now().Add(2*time.Hour)))

	result, err := f.coord.Settle(context.Background(), f.completed)
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.WinnerPayout)

	// The credit path is closed to an expired wallet; settlement still
	// closes it at the computed final balance.
	snap := f.byPlayer["p2"].Snapshot()
	assert.Equal(t, wallet.StatusClosed, snap.Status)
	assert.Equal(t, int64(50), snap.Balance)
}

func TestSettleRecordsProfiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Settle(context.Background(), f.completed)
	require.NoError(t, err)

	require.Len(t, f.profiles.records, 4)
	winner := f.profiles.records["p2"]
	assert.True(t, winner.won)
	assert.Equal(t, int64(40), winner.earnings)
	assert.Equal(t, int64(10), winner.fee)

	loser := f.profiles.records["p1"]
	assert.False(t, loser.won)
	assert.Equal(t, int64(0), loser.earnings)
}
