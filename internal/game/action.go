package game

import (
	"time"

	"github.com/lasthand-os/lasthand-server/internal/card"
)

// Action is one player's submitted (or synthesized) move for a round.
// Later submissions before lock-in replace earlier ones; after lock-in
// the set is frozen and handed to Resolve as-is.
type Action struct {
	PlayerID    string
	Card        card.Card
	TargetID    string
	SubmittedAt time.Time

	// Timeout marks an action synthesized at the deadline rather than
	// submitted by the player.
	Timeout bool
	// Forfeit marks a zero-effect action: the player missed the
	// deadline without auto-fold enabled, or their session expired.
	Forfeit bool
}

// PlayerState is the frozen pre-round view of one player that Resolve
// computes against. Deltas never read another player's post-round
// state, which keeps resolution order-independent.
type PlayerState struct {
	ID         string
	Health     int
	MaxHealth  int
	JoinOrder  int
	DoubleNext bool
}

// Snapshot is the frozen pre-round state of every live player.
type Snapshot struct {
	Players map[string]PlayerState
}

// LogKind categorizes a round log entry.
type LogKind string

const (
	LogTimeout   LogKind = "TIMEOUT"
	LogForfeit   LogKind = "FORFEIT"
	LogMalformed LogKind = "MALFORMED_TARGET"
	LogVoided    LogKind = "VOIDED"
	LogMirrored  LogKind = "MIRRORED"
	LogReveal    LogKind = "REVEAL"
	LogDouble    LogKind = "DOUBLE_ARMED"
)

// LogEntry records a notable resolution event for the round log.
type LogEntry struct {
	Kind     LogKind
	PlayerID string
	Detail   string
}

// Result is the immutable outcome of one round. It is appended to the
// match history and feeds both broadcasting and the final state hash.
type Result struct {
	Round         int
	Actions       []Action
	HealthChanges map[string]int
	Eliminated    []string
	// DoubleNext carries the post-round double-attack flag per player.
	// A DOUBLE card arms it; the caster's next attack consumes it.
	DoubleNext map[string]bool
	Log        []LogEntry
}
