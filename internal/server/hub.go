package server

import (
	"sync"

	"github.com/lasthand-os/lasthand-server/internal/match"
	"go.uber.org/zap"
)

// Hub tracks live connections and fans match broadcasts out to them.
// It implements match.Sink: public snapshots go to every connection in
// the match, private views only to the owning player.
type Hub struct {
	mu sync.RWMutex
	// matchID -> connections subscribed to that match
	matchConns map[string]map[*Connection]bool
	// playerID -> connections authenticated as that player
	playerConns map[string]map[*Connection]bool

	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		matchConns:  make(map[string]map[*Connection]bool),
		playerConns: make(map[string]map[*Connection]bool),
		logger:      logger,
	}
}

// Identify associates a connection with its authenticated player.
func (h *Hub) Identify(c *Connection, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.playerConns[playerID] == nil {
		h.playerConns[playerID] = make(map[*Connection]bool)
	}
	h.playerConns[playerID][c] = true
}

// Subscribe adds a connection to a match's broadcast group.
func (h *Hub) Subscribe(c *Connection, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.matchConns[matchID] == nil {
		h.matchConns[matchID] = make(map[*Connection]bool)
	}
	h.matchConns[matchID][c] = true
}

// Unsubscribe removes a connection from a match's broadcast group.
func (h *Hub) Unsubscribe(c *Connection, matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromMatch(c, matchID)
}

// Drop removes a connection entirely.
func (h *Hub) Drop(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for matchID := range h.matchConns {
		h.removeFromMatch(c, matchID)
	}
	if c.playerID != "" {
		if conns := h.playerConns[c.playerID]; conns != nil {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.playerConns, c.playerID)
			}
		}
	}
}

func (h *Hub) removeFromMatch(c *Connection, matchID string) {
	conns := h.matchConns[matchID]
	if conns == nil {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.matchConns, matchID)
	}
}

// Public implements match.Sink.
func (h *Hub) Public(matchID string, s match.Snapshot) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.matchConns[matchID]))
	for c := range h.matchConns[matchID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	event := Event{Type: EventMatchState, Match: &s}
	for _, c := range targets {
		c.send(event)
	}
}

// Private implements match.Sink.
func (h *Hub) Private(matchID, playerID string, v match.PrivateView) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.playerConns[playerID]))
	for c := range h.playerConns[playerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	event := Event{Type: EventPrivateState, View: &v}
	for _, c := range targets {
		c.send(event)
	}
}
