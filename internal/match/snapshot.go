package match

import (
	"time"

	"github.com/lasthand-os/lasthand-server/internal/card"
	"github.com/lasthand-os/lasthand-server/internal/game"
)

// PlayerSnapshot is a player's public view: health and status, never
// the hand itself.
type PlayerSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Health      int    `json:"health"`
	MaxHealth   int    `json:"maxHealth"`
	HandCount   int    `json:"handCount"`
	Connected   bool   `json:"connected"`
	Eliminated  bool   `json:"eliminated"`
	Forfeited   bool   `json:"forfeited"`
	Submitted   bool   `json:"submitted"`
}

// RoundSnapshot is the broadcast-worthy view of a resolved round.
type RoundSnapshot struct {
	Round         int              `json:"round"`
	HealthChanges map[string]int   `json:"healthChanges"`
	Eliminated    []string         `json:"eliminated"`
	Log           []game.LogEntry  `json:"log"`
	Cards         map[string]string `json:"cards"`
}

// Snapshot is a consistent public copy of a match for broadcast and
// lobby listings.
type Snapshot struct {
	ID             string           `json:"id"`
	Status         string           `json:"status"`
	Phase          string           `json:"phase"`
	EntryFee       int64            `json:"entryFee"`
	PrizePool      int64            `json:"prizePool"`
	MinPlayers     int              `json:"minPlayers"`
	MaxPlayers     int              `json:"maxPlayers"`
	CurrentRound   int              `json:"currentRound"`
	TotalRounds    int              `json:"totalRounds"`
	RoundTimeLimit int              `json:"roundTimeLimitSeconds"`
	WinnerID       string           `json:"winnerId,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	Players        []PlayerSnapshot `json:"players"`
	LastRound      *RoundSnapshot   `json:"lastRound,omitempty"`
}

// PrivateView carries one player's own hand. Delivered only to that
// player's connection, never broadcast.
type PrivateView struct {
	MatchID  string      `json:"matchId"`
	PlayerID string      `json:"playerId"`
	Hand     []card.Card `json:"hand"`
	Selected string      `json:"selectedCardId,omitempty"`
}

// snapshotLocked builds a Snapshot on the actor goroutine.
func (m *Match) snapshotLocked() Snapshot {
	players := make([]PlayerSnapshot, 0, len(m.players))
	for _, p := range m.players {
		_, submitted := m.actions[p.ID]
		players = append(players, PlayerSnapshot{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Health:      p.Health,
			MaxHealth:   p.MaxHealth,
			HandCount:   len(p.Hand),
			Connected:   p.Connected,
			Eliminated:  p.Eliminated,
			Forfeited:   p.Forfeited,
			Submitted:   submitted,
		})
	}

	s := Snapshot{
		ID:             m.ID,
		Status:         m.status.String(),
		Phase:          m.phase.String(),
		EntryFee:       m.Rules.EntryFee,
		PrizePool:      m.prizePool(),
		MinPlayers:     m.Rules.MinPlayers,
		MaxPlayers:     m.Rules.MaxPlayers,
		CurrentRound:   m.currentRound,
		TotalRounds:    m.Rules.TotalRounds,
		RoundTimeLimit: int(m.Rules.RoundTimeLimit.Seconds()),
		WinnerID:       m.winnerID,
		CreatedAt:      m.CreatedAt,
		Players:        players,
	}

	if len(m.history) > 0 {
		last := m.history[len(m.history)-1]
		rs := RoundSnapshot{
			Round:         last.Round,
			HealthChanges: make(map[string]int, len(last.HealthChanges)),
			Eliminated:    append([]string(nil), last.Eliminated...),
			Log:           append([]game.LogEntry(nil), last.Log...),
			Cards:         make(map[string]string, len(last.Actions)),
		}
		for id, hc := range last.HealthChanges {
			rs.HealthChanges[id] = hc
		}
		for _, a := range last.Actions {
			if !a.Forfeit {
				rs.Cards[a.PlayerID] = a.Card.Name
			}
		}
		s.LastRound = &rs
	}
	return s
}

// Snapshot returns a consistent public copy of the match.
func (m *Match) Snapshot() Snapshot {
	var s Snapshot
	_ = m.do(func() error {
		s = m.snapshotLocked()
		return nil
	})
	return s
}

// Hand returns a player's private view.
func (m *Match) Hand(playerID string) (PrivateView, error) {
	var v PrivateView
	err := m.do(func() error {
		p := m.playerByID(playerID)
		if p == nil {
			return ErrPlayerNotInMatch
		}
		v = m.privateViewLocked(p)
		return nil
	})
	return v, err
}

func (m *Match) privateViewLocked(p *Player) PrivateView {
	v := PrivateView{
		MatchID:  m.ID,
		PlayerID: p.ID,
		Hand:     append([]card.Card(nil), p.Hand...),
	}
	if a, ok := m.actions[p.ID]; ok && !a.Forfeit {
		v.Selected = a.Card.ID
	}
	return v
}

// broadcast emits the public snapshot after a state-mutating
// operation. Runs on the actor goroutine.
func (m *Match) broadcast() {
	if m.sink == nil {
		return
	}
	m.sink.Public(m.ID, m.snapshotLocked())
}

// sendPrivate emits one player's own-hand view.
func (m *Match) sendPrivate(p *Player) {
	if m.sink == nil {
		return
	}
	m.sink.Private(m.ID, p.ID, m.privateViewLocked(p))
}
