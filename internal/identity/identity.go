package identity

import (
	"context"
	"errors"
	"sync"
)

var ErrUnknownToken = errors.New("unknown identity token")

// Identity is what the external provider vouches for: a stable player
// id plus a display name. The engine treats both as opaque.
type Identity struct {
	PlayerID    string
	DisplayName string
}

// Provider resolves a login token into an identity. The real provider
// lives outside this process; the engine only consumes the interface.
type Provider interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Preferences are per-player gameplay preferences the engine honors.
type Preferences struct {
	AutoFold bool
}

// Profile aggregates a player's lifetime stats. Updated once per match
// at settlement.
type Profile struct {
	PlayerID      string
	DisplayName   string
	TotalMatches  int
	Wins          int
	Losses        int
	TotalEarnings int64
	TotalSpent    int64
	Preferences   Preferences
}

// ProfileStore persists player profiles. A nil store is valid; the
// engine then skips stat tracking.
type ProfileStore interface {
	Get(ctx context.Context, playerID string) (Profile, error)
	RecordMatch(ctx context.Context, playerID string, won bool, earnings, spent int64) error
}

// StaticProvider is an in-memory provider for development and tests:
// each registered token maps directly to an identity.
type StaticProvider struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{identities: make(map[string]Identity)}
}

// Register maps a token to an identity.
func (p *StaticProvider) Register(token string, id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[token] = id
}

// Resolve implements Provider.
func (p *StaticProvider) Resolve(_ context.Context, token string) (Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.identities[token]
	if !ok {
		return Identity{}, ErrUnknownToken
	}
	return id, nil
}
