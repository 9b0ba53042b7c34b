package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/settlement"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap/zaptest"
)

// recordingSink captures broadcasts so tests can assert on visibility
// rules without a live websocket hub.
type recordingSink struct {
	mu       sync.Mutex
	public   []match.Snapshot
	private  []match.PrivateView
	privates map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{privates: make(map[string]int)}
}

func (s *recordingSink) Public(_ string, snap match.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public = append(s.public, snap)
}

func (s *recordingSink) Private(_ string, playerID string, v match.PrivateView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.private = append(s.private, v)
	s.privates[playerID]++
}

type lastHandEnv struct {
	wallets  *wallet.Manager
	ledger   *settlement.MemoryLedger
	coord    *settlement.Coordinator
	registry *match.Registry
	sink     *recordingSink

	mu        sync.Mutex
	completed []match.Completed
	settled   chan settlement.MatchResult
}

func newLastHandEnv(t testing.TB) *lastHandEnv {
	logger := zaptest.NewLogger(t)

	env := &lastHandEnv{
		wallets: wallet.NewManager(time.Hour, logger),
		ledger:  settlement.NewMemoryLedger(),
		sink:    newRecordingSink(),
		settled: make(chan settlement.MatchResult, 1),
	}
	env.coord = settlement.NewCoordinator(env.ledger, env.wallets, nil, nil, logger)

	defaults := match.Rules{
		MinPlayers:     4,
		MaxPlayers:     8,
		TotalRounds:    5,
		RoundTimeLimit: 10 * time.Second,
		MaxHealth:      100,
		HandSize:       12,
		Seed:           7,
	}
	env.registry = match.NewRegistry(defaults, env.wallets, env.sink, func(c match.Completed) {
		env.mu.Lock()
		env.completed = append(env.completed, c)
		env.mu.Unlock()
		result, err := env.coord.Settle(context.Background(), c)
		if err != nil {
			t.Errorf("settlement failed: %v", err)
			return
		}
		env.settled <- result
	}, logger)
	return env
}

// TestFullMatchLifecycle drives a four-player match from lobby to
// settlement. Round script, repeated five times:
//
//	p1 STRIKE -> p4   20 damage, p4 has no defense up
//	p2 BLOCK          no deltas
//	p3 BLOCK          no deltas
//	p4 FEINT -> p1    10 direct damage
//
// p4 falls exactly at the round cap (100 - 5*20), leaving survivors
// p1=50, p2=100, p3=100. The winner is the earliest-joined of the two
// full-health survivors: p2.
func TestFullMatchLifecycle(t *testing.T) {
	env := newLastHandEnv(t)

	m, err := env.registry.Create(10, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	players := []string{"p1", "p2", "p3", "p4"}
	for _, id := range players {
		if err := m.Join(id, id, false); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if got := env.wallets.ActiveCount(); got != 4 {
		t.Fatalf("expected 4 active session wallets, got %d", got)
	}
	if err := m.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// With the full catalog dealt, every played card's replacement draw
	// is forced back to the same card, so the script repeats cleanly.
	for round := 1; round <= 5; round++ {
		moves := []struct{ player, cardID, target string }{
			{"p1", "atk-1", "p4"},
			{"p2", "def-1", ""},
			{"p3", "def-1", ""},
			{"p4", "trk-1", "p1"},
		}
		for _, mv := range moves {
			if err := m.Submit(mv.player, mv.cardID, mv.target); err != nil {
				t.Fatalf("round %d submit %s: %v", round, mv.player, err)
			}
		}
	}

	var result settlement.MatchResult
	select {
	case result = <-env.settled:
	case <-time.After(2 * time.Second):
		t.Fatal("match never reached settlement")
	}

	if result.WinnerID != "p2" {
		t.Fatalf("expected p2 to win on the join-order tie-break, got %s", result.WinnerID)
	}
	if result.WinnerPayout != 40 {
		t.Fatalf("expected payout 40, got %d", result.WinnerPayout)
	}
	if len(result.Rounds) != 5 {
		t.Fatalf("expected 5 resolved rounds, got %d", len(result.Rounds))
	}
	if len(result.FinalStateHash) != 64 {
		t.Fatalf("expected sha256 hex state hash, got %q", result.FinalStateHash)
	}
	last := result.Rounds[4]
	if len(last.Eliminated) != 1 || last.Eliminated[0] != "p4" {
		t.Fatalf("expected p4 eliminated in the final round, got %v", last.Eliminated)
	}

	// The completed match leaves the registry before settlement runs.
	if env.registry.Count() != 0 {
		t.Fatalf("expected empty registry, got %d matches", env.registry.Count())
	}

	// Wallet accounting: winner closes at entry fee plus pool, losers
	// at zero, nobody stays active.
	env.mu.Lock()
	completed := env.completed[0]
	env.mu.Unlock()
	for _, p := range completed.Players {
		w, ok := env.wallets.Get(p.WalletID)
		if !ok {
			t.Fatalf("wallet for %s missing", p.ID)
		}
		snap := w.Snapshot()
		if snap.Status != wallet.StatusClosed {
			t.Fatalf("wallet for %s not closed: %s", p.ID, snap.Status)
		}
		want := int64(0)
		if p.ID == "p2" {
			want = 50
		}
		if snap.Balance != want {
			t.Fatalf("wallet for %s closed at %d, want %d", p.ID, snap.Balance, want)
		}
	}
	if env.ledger.TransferCount() != 1 {
		t.Fatalf("expected exactly one ledger transfer, got %d", env.ledger.TransferCount())
	}

	// Settling the same hand-off again returns the cached result and
	// moves no funds.
	again, err := env.coord.Settle(context.Background(), completed)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if again.Receipt.TxID != result.Receipt.TxID {
		t.Fatal("second settle must return the original receipt")
	}
	if env.ledger.TransferCount() != 1 {
		t.Fatalf("second settle moved funds: %d transfers", env.ledger.TransferCount())
	}
}

func TestBroadcastsHideHands(t *testing.T) {
	env := newLastHandEnv(t)

	m, err := env.registry.Create(5, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if err := m.Join(id, id, false); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if err := m.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	env.sink.mu.Lock()
	defer env.sink.mu.Unlock()

	if len(env.sink.public) == 0 {
		t.Fatal("expected public broadcasts")
	}
	for _, snap := range env.sink.public {
		for _, p := range snap.Players {
			if p.HandCount == 0 && snap.Status == "IN_PROGRESS" {
				t.Fatalf("player %s should hold cards", p.ID)
			}
		}
	}

	// Private views carry a hand and only reach their owner.
	for _, v := range env.sink.private {
		if len(v.Hand) == 0 {
			t.Fatalf("private view for %s has no hand", v.PlayerID)
		}
	}
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if env.sink.privates[id] == 0 {
			t.Fatalf("player %s never received a private view", id)
		}
	}
}

func TestWalletExpiryForfeitsAcrossTheStack(t *testing.T) {
	env := newLastHandEnv(t)

	m, err := env.registry.Create(5, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		if err := m.Join(id, id, false); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if err := m.Start("p1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate the sweep finding p4's wallet expired.
	env.registry.ForfeitOwner("p4")

	// The three remaining players lock the round in without p4.
	for _, mv := range []struct{ player, cardID string }{
		{"p1", "def-1"}, {"p2", "def-1"}, {"p3", "def-1"},
	} {
		if err := m.Submit(mv.player, mv.cardID, ""); err != nil {
			t.Fatalf("submit %s: %v", mv.player, err)
		}
	}

	snap := m.Snapshot()
	if snap.CurrentRound != 2 {
		t.Fatalf("round should advance without the forfeited player, got %d", snap.CurrentRound)
	}
	for _, p := range snap.Players {
		if p.ID == "p4" {
			if !p.Forfeited {
				t.Fatal("p4 should be forfeited")
			}
			if p.Eliminated {
				t.Fatal("forfeiture must not eliminate; health rules still apply")
			}
		}
	}
	if err := m.Submit("p4", "def-1", ""); err != match.ErrInvalidState {
		t.Fatalf("forfeited player must be rejected, got %v", err)
	}
}
