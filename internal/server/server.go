package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/lasthand-os/lasthand-server/internal/config"
	"github.com/lasthand-os/lasthand-server/internal/identity"
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/settlement"
	"go.uber.org/zap"
)

// Server is the websocket command surface over the match engine.
type Server struct {
	cfg        config.WebSocketConfig
	hub        *Hub
	registry   *match.Registry
	settlement *settlement.Coordinator
	provider   identity.Provider
	logger     *zap.Logger

	httpSrv *http.Server
}

// New creates the websocket server.
func New(
	cfg config.WebSocketConfig,
	hub *Hub,
	registry *match.Registry,
	settlementCoord *settlement.Coordinator,
	provider identity.Provider,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		hub:        hub,
		registry:   registry,
		settlement: settlementCoord,
		provider:   provider,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.serveWs)
	s.httpSrv = &http.Server{Addr: cfg.Address, Handler: mux}
	return s
}

// Start blocks serving websocket upgrades until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting websocket server",
		zap.String("address", s.cfg.Address),
		zap.String("path", s.cfg.Path),
	)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains existing ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// route dispatches one inbound command. Every command except login
// requires an authenticated connection.
func (s *Server) route(c *Connection, cmd Command) {
	if cmd.Type == CmdLogin {
		s.handleLogin(c, cmd)
		return
	}
	if c.playerID == "" {
		c.sendError("NOT_AUTHORIZED", "login required")
		return
	}

	switch cmd.Type {
	case CmdCreateMatch:
		s.handleCreateMatch(c, cmd)
	case CmdJoinMatch:
		s.handleJoinMatch(c, cmd)
	case CmdLeaveMatch:
		s.handleLeaveMatch(c, cmd)
	case CmdStartMatch:
		s.handleStartMatch(c, cmd)
	case CmdSubmitCard:
		s.handleSubmitCard(c, cmd)
	case CmdRequestSettlement:
		s.handleRequestSettlement(c, cmd)
	case CmdListMatches:
		s.handleListMatches(c)
	case CmdReconnectMatch:
		s.handleReconnect(c, cmd)
	default:
		c.sendError("BAD_REQUEST", "unknown command type: "+cmd.Type)
	}
}

func (s *Server) handleLogin(c *Connection, cmd Command) {
	id, err := s.provider.Resolve(context.Background(), cmd.Token)
	if err != nil {
		s.logger.Warn("login failed", zap.Error(err))
		c.sendError("NOT_AUTHORIZED", "identity not recognized")
		return
	}

	c.playerID = id.PlayerID
	c.displayName = id.DisplayName
	c.autoFold = cmd.AutoFold
	s.hub.Identify(c, id.PlayerID)

	s.logger.Info("player logged in",
		zap.String("player", id.PlayerID),
		zap.String("display_name", id.DisplayName),
	)
	c.send(Event{Type: EventLoggedIn, PlayerID: id.PlayerID, DisplayName: id.DisplayName})
}

func (s *Server) handleCreateMatch(c *Connection, cmd Command) {
	m, err := s.registry.Create(cmd.EntryFee, cmd.MaxPlayers)
	if err != nil {
		s.replyError(c, err)
		return
	}

	// The creator is the first entrant and therefore the host.
	s.hub.Subscribe(c, m.ID)
	if err := m.Join(c.playerID, c.displayName, c.autoFold); err != nil {
		s.hub.Unsubscribe(c, m.ID)
		s.registry.Remove(m.ID)
		s.replyError(c, err)
		return
	}
	c.matchID = m.ID
}

func (s *Server) handleJoinMatch(c *Connection, cmd Command) {
	m, err := s.registry.Get(cmd.MatchID)
	if err != nil {
		s.replyError(c, err)
		return
	}

	s.hub.Subscribe(c, m.ID)
	if err := m.Join(c.playerID, c.displayName, c.autoFold); err != nil {
		s.hub.Unsubscribe(c, m.ID)
		s.replyError(c, err)
		return
	}
	c.matchID = m.ID
}

func (s *Server) handleLeaveMatch(c *Connection, cmd Command) {
	m, err := s.registry.Get(cmd.MatchID)
	if err != nil {
		s.replyError(c, err)
		return
	}

	if err := m.Leave(c.playerID); err != nil {
		s.replyError(c, err)
		return
	}
	s.hub.Unsubscribe(c, m.ID)
	c.matchID = ""
}

func (s *Server) handleStartMatch(c *Connection, cmd Command) {
	m, err := s.registry.Get(cmd.MatchID)
	if err != nil {
		s.replyError(c, err)
		return
	}
	if err := m.Start(c.playerID); err != nil {
		s.replyError(c, err)
	}
}

func (s *Server) handleSubmitCard(c *Connection, cmd Command) {
	m, err := s.registry.Get(cmd.MatchID)
	if err != nil {
		s.replyError(c, err)
		return
	}
	if err := m.Submit(c.playerID, cmd.CardID, cmd.TargetID); err != nil {
		s.replyError(c, err)
	}
}

func (s *Server) handleRequestSettlement(c *Connection, cmd Command) {
	// Completed matches have already left the registry; the
	// coordinator holds their result, or the pending hand-off when the
	// ledger failed the first time.
	if result, ok := s.settlement.Result(cmd.MatchID); ok {
		c.send(Event{Type: EventSettlement, Result: &result})
		return
	}

	result, err := s.settlement.Retry(context.Background(), cmd.MatchID)
	if err != nil {
		if errors.Is(err, settlement.ErrNotFound) {
			// Still live (or unknown): settlement is not available yet.
			if _, regErr := s.registry.Get(cmd.MatchID); regErr == nil {
				c.sendError("INVALID_STATE", "match not completed")
				return
			}
		}
		s.replyError(c, err)
		return
	}
	c.send(Event{Type: EventSettlement, Result: &result})
}

func (s *Server) handleListMatches(c *Connection) {
	c.send(Event{Type: EventMatchList, Matches: s.registry.List()})
}

func (s *Server) handleReconnect(c *Connection, cmd Command) {
	m, err := s.registry.Get(cmd.MatchID)
	if err != nil {
		s.replyError(c, err)
		return
	}

	s.hub.Subscribe(c, m.ID)
	if err := m.SetConnected(c.playerID, true); err != nil {
		s.hub.Unsubscribe(c, m.ID)
		s.replyError(c, err)
		return
	}
	c.matchID = m.ID
}

// replyError maps engine errors onto wire error codes.
func (s *Server) replyError(c *Connection, err error) {
	code := "INTERNAL"
	switch {
	case errors.Is(err, match.ErrInvalidState), errors.Is(err, settlement.ErrInvalidState):
		code = "INVALID_STATE"
	case errors.Is(err, match.ErrNotAuthorized):
		code = "NOT_AUTHORIZED"
	case errors.Is(err, match.ErrCapacityExceeded):
		code = "CAPACITY_EXCEEDED"
	case errors.Is(err, match.ErrNotFound), errors.Is(err, match.ErrPlayerNotInMatch),
		errors.Is(err, settlement.ErrNotFound):
		code = "NOT_FOUND"
	case errors.Is(err, match.ErrAlreadyJoined):
		code = "ALREADY_JOINED"
	case errors.Is(err, match.ErrNotEnoughPlayers):
		code = "NOT_ENOUGH_PLAYERS"
	case errors.Is(err, match.ErrWrongPhase):
		code = "WRONG_PHASE"
	case errors.Is(err, match.ErrCardNotInHand):
		code = "CARD_NOT_IN_HAND"
	case errors.Is(err, match.ErrPlayerEliminated):
		code = "PLAYER_ELIMINATED"
	case errors.Is(err, settlement.ErrAlreadySettled):
		code = "ALREADY_SETTLED"
	case errors.Is(err, match.ErrInvalidEntryFee):
		code = "BAD_REQUEST"
	}
	c.sendError(code, err.Error())
}
