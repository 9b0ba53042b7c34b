package match

import (
	"sync"

	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap"
)

// Registry is the process-wide table of live matches. It is the only
// structure shared across matches; each match serializes its own
// mutations on its actor goroutine.
type Registry struct {
	matches map[string]*Match
	mu      sync.RWMutex

	wallets  *wallet.Manager
	sink     Sink
	onEnd    func(Completed)
	defaults Rules
	logger   *zap.Logger
}

// NewRegistry creates a match registry. defaults supplies the game
// parameters not chosen by the creating player; onEnd is forwarded to
// every match and fires once per completed match.
func NewRegistry(defaults Rules, wallets *wallet.Manager, sink Sink, onEnd func(Completed), logger *zap.Logger) *Registry {
	return &Registry{
		matches:  make(map[string]*Match),
		wallets:  wallets,
		sink:     sink,
		onEnd:    onEnd,
		defaults: defaults,
		logger:   logger,
	}
}

// Create opens a new WAITING match with the given entry fee and
// capacity. The creator still has to join it; the first entrant
// becomes host. The fee is client-chosen and must be positive, or
// every joining wallet would lock a non-positive amount.
func (r *Registry) Create(entryFee int64, maxPlayers int) (*Match, error) {
	if entryFee <= 0 {
		return nil, ErrInvalidEntryFee
	}

	rules := r.defaults
	rules.EntryFee = entryFee
	if maxPlayers > 0 {
		rules.MaxPlayers = maxPlayers
	}
	if rules.MaxPlayers < rules.MinPlayers {
		rules.MaxPlayers = rules.MinPlayers
	}

	m := New(rules, r.wallets, r.sink, r.completed, r.logger)

	r.mu.Lock()
	r.matches[m.ID] = m
	r.mu.Unlock()

	r.logger.Info("match created",
		zap.String("match_id", m.ID),
		zap.Int64("entry_fee", entryFee),
		zap.Int("max_players", rules.MaxPlayers),
	)
	return m, nil
}

// completed runs once per finished match: drop it from the table, then
// forward to the settlement hook.
func (r *Registry) completed(c Completed) {
	r.Remove(c.MatchID)
	if r.onEnd != nil {
		r.onEnd(c)
	}
}

// Get retrieves a live match by id.
func (r *Registry) Get(matchID string) (*Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// Remove drops a match from the table and stops its actor. Safe to
// call twice.
func (r *Registry) Remove(matchID string) {
	r.mu.Lock()
	m, ok := r.matches[matchID]
	delete(r.matches, matchID)
	r.mu.Unlock()

	if ok {
		m.Stop()
		r.logger.Info("match removed", zap.String("match_id", matchID))
	}
}

// List returns public snapshots of every live match, for the lobby.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	matches := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(matches))
	for _, m := range matches {
		snaps = append(snaps, m.Snapshot())
	}
	return snaps
}

// ForfeitOwner routes a wallet-expiry forfeiture to every live match
// the owner is part of, through each match's own action queue.
func (r *Registry) ForfeitOwner(ownerID string) {
	r.mu.RLock()
	matches := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		matches = append(matches, m)
	}
	r.mu.RUnlock()

	for _, m := range matches {
		m.ForfeitPlayer(ownerID)
	}
}

// Count returns the number of live matches.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}
