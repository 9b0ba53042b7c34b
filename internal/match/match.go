package match

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lasthand-os/lasthand-server/internal/card"
	"github.com/lasthand-os/lasthand-server/internal/game"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap"
)

var (
	ErrInvalidState     = errors.New("operation not valid in current match state")
	ErrNotAuthorized    = errors.New("requester is not the match host")
	ErrCapacityExceeded = errors.New("match is full")
	ErrNotFound         = errors.New("match not found")
	ErrAlreadyJoined    = errors.New("player already joined")
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	ErrWrongPhase       = errors.New("operation not valid in current round phase")
	ErrCardNotInHand    = errors.New("card not in player's hand")
	ErrPlayerEliminated = errors.New("player is eliminated")
	ErrPlayerNotInMatch = errors.New("player not in match")
	ErrInvalidEntryFee  = errors.New("entry fee must be positive")
)

// Status is the overall match lifecycle state. Transitions are
// monotonic: WAITING -> IN_PROGRESS -> {COMPLETED, CANCELLED}.
type Status int

const (
	StatusWaiting Status = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "WAITING"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Phase is the per-round state while the match is IN_PROGRESS.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelecting
	PhaseRevealing
	PhaseRoundEnd
	PhaseGameEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseSelecting:
		return "SELECTING"
	case PhaseRevealing:
		return "REVEALING"
	case PhaseRoundEnd:
		return "ROUND_END"
	case PhaseGameEnd:
		return "GAME_END"
	default:
		return "UNKNOWN"
	}
}

// Rules fixes a match's parameters at creation.
type Rules struct {
	EntryFee       int64
	MinPlayers     int
	MaxPlayers     int
	TotalRounds    int
	RoundTimeLimit time.Duration
	MaxHealth      int
	HandSize       int
	// Seed drives the dealer; zero means derive from the clock.
	Seed int64
}

// Player is one participant, owned exclusively by its match. All
// access happens on the match actor goroutine.
type Player struct {
	ID          string
	DisplayName string
	Health      int
	MaxHealth   int
	Hand        []card.Card
	Connected   bool
	Eliminated  bool
	AutoFold    bool
	// Forfeited is set when the player's session wallet expires; the
	// player forfeits every subsequent round but keeps their health.
	Forfeited  bool
	WalletID   string
	DoubleNext bool
	JoinedAt   time.Time
}

// CompletedPlayer is the settlement-relevant slice of a player.
type CompletedPlayer struct {
	ID       string
	WalletID string
}

// Completed is the immutable hand-off from a finished match to the
// settlement coordinator.
type Completed struct {
	MatchID        string
	WinnerID       string
	EntryFee       int64
	PrizePool      int64
	Players        []CompletedPlayer
	History        []game.Result
	FinalStateHash string
}

// Sink receives state broadcasts. Public snapshots hide hands; the
// private view carries a single player's own hand.
type Sink interface {
	Public(matchID string, s Snapshot)
	Private(matchID, playerID string, v PrivateView)
}

// Match is one game from lobby to settlement hand-off. Every mutation
// runs on a single actor goroutine; exported methods post commands
// into that goroutine and wait, so concurrent callers are serialized
// in arrival order.
type Match struct {
	ID        string
	Rules     Rules
	CreatedAt time.Time

	status       Status
	currentRound int
	winnerID     string
	players      []*Player
	history      []game.Result

	phase    Phase
	roundGen int
	actions  map[string]game.Action
	deadline *time.Timer

	dealer  *card.Dealer
	wallets *wallet.Manager
	sink    Sink
	onEnd   func(Completed)
	logger  *zap.Logger

	cmds chan func()
	done chan struct{}
}

// New creates a WAITING match and starts its actor goroutine. onEnd is
// invoked exactly once, off the actor goroutine, when the match
// reaches COMPLETED.
func New(rules Rules, wallets *wallet.Manager, sink Sink, onEnd func(Completed), logger *zap.Logger) *Match {
	seed := rules.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id := uuid.NewString()
	m := &Match{
		ID:        id,
		Rules:     rules,
		CreatedAt: time.Now(),
		status:    StatusWaiting,
		phase:     PhaseIdle,
		actions:   make(map[string]game.Action),
		dealer:    card.NewDealer(seed),
		wallets:   wallets,
		sink:      sink,
		onEnd:     onEnd,
		logger:    logger.With(zap.String("match_id", id)),
		cmds:      make(chan func(), 64),
		done:      make(chan struct{}),
	}

	go m.run()
	return m
}

func (m *Match) run() {
	for {
		select {
		case cmd := <-m.cmds:
			cmd()
		case <-m.done:
			// Drain anything already queued so callers never hang.
			for {
				select {
				case cmd := <-m.cmds:
					cmd()
				default:
					return
				}
			}
		}
	}
}

// Stop shuts down the actor goroutine. Idempotent.
func (m *Match) Stop() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

// do runs fn on the actor goroutine and waits for its result.
func (m *Match) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.cmds <- func() { reply <- fn() }:
	case <-m.done:
		return ErrInvalidState
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		// The actor is winding down; it drains the queue before
		// exiting, so give the reply one more chance.
		select {
		case err := <-reply:
			return err
		default:
			return ErrInvalidState
		}
	}
}

// async posts fn without waiting. Used by timers and wallet expiry so
// they never mutate match state directly.
func (m *Match) async(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.done:
	}
}

// Join adds a player with full health and a dealt hand, opens a
// session wallet locking the entry fee, and grows the prize pool.
func (m *Match) Join(playerID, displayName string, autoFold bool) error {
	return m.do(func() error {
		if m.status != StatusWaiting {
			return ErrInvalidState
		}
		if len(m.players) == m.Rules.MaxPlayers {
			return ErrCapacityExceeded
		}
		if m.playerByID(playerID) != nil {
			return ErrAlreadyJoined
		}

		w := m.wallets.Open(playerID, m.Rules.EntryFee, nil, 0)
		p := &Player{
			ID:          playerID,
			DisplayName: displayName,
			Health:      m.Rules.MaxHealth,
			MaxHealth:   m.Rules.MaxHealth,
			Hand:        m.dealer.DealHand(m.Rules.HandSize),
			Connected:   true,
			AutoFold:    autoFold,
			WalletID:    w.ID,
			JoinedAt:    time.Now(),
		}
		m.players = append(m.players, p)

		m.logger.Info("player joined",
			zap.String("player", playerID),
			zap.Int("players", len(m.players)),
			zap.Int64("prize_pool", m.prizePool()),
		)
		m.broadcast()
		m.sendPrivate(p)
		return nil
	})
}

// prizePool is derived from the joined player count: each join locks
// one entry fee, a WAITING leave refunds one. The roster is fixed once
// the match starts, so the pool never decreases during play.
func (m *Match) prizePool() int64 {
	return m.Rules.EntryFee * int64(len(m.players))
}

// Start transitions the match to IN_PROGRESS and opens round 1. Only
// the host (first entrant) may start.
func (m *Match) Start(requesterID string) error {
	return m.do(func() error {
		if m.status != StatusWaiting {
			return ErrInvalidState
		}
		if len(m.players) == 0 || m.players[0].ID != requesterID {
			return ErrNotAuthorized
		}
		if len(m.players) < m.Rules.MinPlayers {
			return ErrNotEnoughPlayers
		}

		m.status = StatusInProgress
		m.currentRound = 1
		m.logger.Info("match started",
			zap.String("host", requesterID),
			zap.Int("players", len(m.players)),
			zap.Int("total_rounds", m.Rules.TotalRounds),
		)
		m.enterSelecting()
		return nil
	})
}

// Leave removes a WAITING player and releases their wallet lock. While
// IN_PROGRESS the player is only marked disconnected; health and
// elimination rules keep applying, and auto-fold forwards a default
// action for the active round.
func (m *Match) Leave(playerID string) error {
	return m.do(func() error {
		p := m.playerByID(playerID)
		if p == nil {
			return ErrPlayerNotInMatch
		}

		switch m.status {
		case StatusWaiting:
			if err := m.wallets.Release(p.WalletID); err != nil {
				m.logger.Warn("wallet release failed",
					zap.String("player", playerID),
					zap.Error(err),
				)
			}
			for i, q := range m.players {
				if q.ID == playerID {
					m.players = append(m.players[:i], m.players[i+1:]...)
					break
				}
			}
			m.logger.Info("player left lobby", zap.String("player", playerID))
			if len(m.players) == 0 {
				m.status = StatusCancelled
				m.logger.Info("match cancelled, lobby empty")
				m.Stop()
			}
			m.broadcast()
			return nil

		case StatusInProgress:
			p.Connected = false
			m.logger.Info("player disconnected mid-match", zap.String("player", playerID))
			if m.phase == PhaseSelecting {
				if _, submitted := m.actions[p.ID]; !submitted && p.AutoFold && !p.Eliminated {
					m.actions[p.ID] = game.Action{
						PlayerID:    p.ID,
						Card:        card.DefaultDefensive(),
						SubmittedAt: time.Now(),
					}
				}
				m.maybeLockIn()
			}
			m.broadcast()
			return nil

		default:
			return ErrInvalidState
		}
	})
}

// SetConnected records a transport-level disconnect or reconnect. It
// never changes the match status.
func (m *Match) SetConnected(playerID string, connected bool) error {
	return m.do(func() error {
		p := m.playerByID(playerID)
		if p == nil {
			return ErrPlayerNotInMatch
		}
		p.Connected = connected
		m.broadcast()
		if connected {
			m.sendPrivate(p)
		}
		return nil
	})
}

// ForfeitPlayer marks a player as forfeited for all subsequent rounds.
// Driven by session wallet expiry, routed through the actor queue.
func (m *Match) ForfeitPlayer(playerID string) {
	m.async(func() {
		p := m.playerByID(playerID)
		if p == nil || p.Forfeited {
			return
		}
		p.Forfeited = true
		m.logger.Info("player forfeited on session expiry", zap.String("player", playerID))
		if m.status == StatusInProgress && m.phase == PhaseSelecting {
			delete(m.actions, p.ID)
			m.maybeLockIn()
		}
	})
}

func (m *Match) playerByID(id string) *Player {
	for _, p := range m.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Status returns the current lifecycle status.
func (m *Match) Status() Status {
	var s Status
	_ = m.do(func() error {
		s = m.status
		return nil
	})
	return s
}
