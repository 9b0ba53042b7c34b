package match

import (
	"time"

	"github.com/lasthand-os/lasthand-server/internal/card"
	"github.com/lasthand-os/lasthand-server/internal/game"
	"go.uber.org/zap"
)

// enterSelecting opens a new SELECTING window: selections cleared, a
// fresh deadline armed. The round generation counter guards against a
// stale timer firing after the phase has already advanced.
func (m *Match) enterSelecting() {
	m.phase = PhaseSelecting
	m.roundGen++
	m.actions = make(map[string]game.Action)

	gen := m.roundGen
	if m.deadline != nil {
		m.deadline.Stop()
	}
	m.deadline = time.AfterFunc(m.Rules.RoundTimeLimit, func() {
		m.async(func() { m.onDeadline(gen) })
	})

	m.logger.Info("round selecting",
		zap.Int("round", m.currentRound),
		zap.Duration("time_limit", m.Rules.RoundTimeLimit),
	)
	m.broadcast()
}

// Submit records a player's action for the current round. A second
// submission before lock-in replaces the first.
func (m *Match) Submit(playerID, cardID, targetID string) error {
	return m.do(func() error {
		if m.status != StatusInProgress {
			return ErrInvalidState
		}
		if m.phase != PhaseSelecting {
			return ErrWrongPhase
		}
		p := m.playerByID(playerID)
		if p == nil {
			return ErrPlayerNotInMatch
		}
		if p.Eliminated {
			return ErrPlayerEliminated
		}
		if p.Forfeited {
			return ErrInvalidState
		}

		var chosen card.Card
		found := false
		for _, c := range p.Hand {
			if c.ID == cardID {
				chosen = c
				found = true
				break
			}
		}
		if !found {
			return ErrCardNotInHand
		}

		m.actions[playerID] = game.Action{
			PlayerID:    playerID,
			Card:        chosen,
			TargetID:    targetID,
			SubmittedAt: time.Now(),
		}

		m.logger.Debug("action submitted",
			zap.Int("round", m.currentRound),
			zap.String("player", playerID),
			zap.String("card", chosen.Name),
		)
		m.maybeLockIn()
		m.broadcast()
		return nil
	})
}

// maybeLockIn advances to REVEALING the instant every connected,
// non-eliminated, non-forfeited player has submitted.
func (m *Match) maybeLockIn() {
	if m.phase != PhaseSelecting {
		return
	}
	for _, p := range m.players {
		if p.Eliminated || p.Forfeited || !p.Connected {
			continue
		}
		if _, ok := m.actions[p.ID]; !ok {
			return
		}
	}
	m.reveal()
}

// onDeadline fires from the round timer. Losing the race against the
// all-submitted trigger is a no-op thanks to the generation guard.
func (m *Match) onDeadline(gen int) {
	if m.roundGen != gen || m.phase != PhaseSelecting {
		return
	}
	m.logger.Info("round deadline reached", zap.Int("round", m.currentRound))
	m.reveal()
}

// reveal freezes the action set, synthesizes defaults for players who
// never submitted, runs the resolver, and applies the result.
func (m *Match) reveal() {
	m.phase = PhaseRevealing
	if m.deadline != nil {
		m.deadline.Stop()
	}

	now := time.Now()
	snap := game.Snapshot{Players: make(map[string]game.PlayerState, len(m.players))}
	for i, p := range m.players {
		if p.Eliminated {
			continue
		}
		snap.Players[p.ID] = game.PlayerState{
			ID:         p.ID,
			Health:     p.Health,
			MaxHealth:  p.MaxHealth,
			JoinOrder:  i,
			DoubleNext: p.DoubleNext,
		}

		if _, ok := m.actions[p.ID]; ok {
			continue
		}
		if p.AutoFold && !p.Forfeited {
			// Auto-fold plays the designated defensive card without
			// consuming anything from the hand.
			m.actions[p.ID] = game.Action{
				PlayerID:    p.ID,
				Card:        card.DefaultDefensive(),
				SubmittedAt: now,
				Timeout:     true,
			}
		} else {
			m.actions[p.ID] = game.Action{
				PlayerID:    p.ID,
				SubmittedAt: now,
				Timeout:     true,
				Forfeit:     true,
			}
		}
	}

	frozen := make([]game.Action, 0, len(m.actions))
	for _, p := range m.players {
		if a, ok := m.actions[p.ID]; ok && !p.Eliminated {
			frozen = append(frozen, a)
		}
	}

	result := game.Resolve(m.currentRound, snap, frozen)
	m.applyResult(result)
}

// applyResult mutates player state from a resolved round: clamped
// health deltas, eliminations, double-attack carry, and hand upkeep.
func (m *Match) applyResult(result game.Result) {
	for _, p := range m.players {
		if p.Eliminated {
			continue
		}

		p.Health += result.HealthChanges[p.ID]
		if p.Health < 0 {
			p.Health = 0
		}
		if p.Health > p.MaxHealth {
			p.Health = p.MaxHealth
		}
		if p.Health == 0 {
			p.Eliminated = true
		}
		p.DoubleNext = result.DoubleNext[p.ID]
	}

	// Submitted cards leave the hand; survivors draw a replacement.
	// Synthesized defaults never consumed a hand card.
	for _, a := range result.Actions {
		if a.Timeout || a.Forfeit {
			continue
		}
		p := m.playerByID(a.PlayerID)
		if p == nil {
			continue
		}
		for i, c := range p.Hand {
			if c.ID == a.Card.ID {
				p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
				break
			}
		}
		if !p.Eliminated {
			p.Hand = append(p.Hand, m.dealer.Replace(p.Hand))
		}
	}

	m.history = append(m.history, result)
	m.phase = PhaseRoundEnd

	m.logger.Info("round resolved",
		zap.Int("round", result.Round),
		zap.Int("eliminated", len(result.Eliminated)),
	)
	m.broadcast()
	for _, p := range m.players {
		if !p.Eliminated {
			m.sendPrivate(p)
		}
	}

	if m.currentRound >= m.Rules.TotalRounds || m.survivorCount() <= 1 {
		m.endGame()
		return
	}
	m.currentRound++
	m.enterSelecting()
}

func (m *Match) survivorCount() int {
	n := 0
	for _, p := range m.players {
		if !p.Eliminated {
			n++
		}
	}
	return n
}

// winner picks the highest-health survivor, ties broken by earliest
// join order. With no survivors the earliest-joined player wins by
// the same rule applied to the whole roster.
func (m *Match) winner() *Player {
	var best *Player
	for _, p := range m.players {
		if p.Eliminated {
			continue
		}
		if best == nil || p.Health > best.Health {
			best = p
		}
	}
	if best == nil && len(m.players) > 0 {
		best = m.players[0]
		for _, p := range m.players[1:] {
			if p.Health > best.Health {
				best = p
			}
		}
	}
	return best
}

// endGame transitions to COMPLETED and hands off to settlement. The
// hand-off runs outside the actor goroutine so a slow ledger can never
// block the match queue.
func (m *Match) endGame() {
	m.phase = PhaseGameEnd
	m.status = StatusCompleted
	if m.deadline != nil {
		m.deadline.Stop()
	}

	w := m.winner()
	if w != nil {
		m.winnerID = w.ID
	}

	players := make([]CompletedPlayer, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, CompletedPlayer{ID: p.ID, WalletID: p.WalletID})
	}
	history := append([]game.Result(nil), m.history...)
	completed := Completed{
		MatchID:        m.ID,
		WinnerID:       m.winnerID,
		EntryFee:       m.Rules.EntryFee,
		PrizePool:      m.prizePool(),
		Players:        players,
		History:        history,
		FinalStateHash: game.StateHash(m.ID, history),
	}

	m.logger.Info("match completed",
		zap.String("winner", m.winnerID),
		zap.Int64("prize_pool", completed.PrizePool),
		zap.String("final_state_hash", completed.FinalStateHash),
	)
	m.broadcast()

	if m.onEnd != nil {
		go m.onEnd(completed)
	}
}
