package server

import (
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/settlement"
)

// Command is the inbound JSON message from a client.
type Command struct {
	Type string `json:"type"`

	// login
	Token    string `json:"token,omitempty"`
	AutoFold bool   `json:"autoFold,omitempty"`

	// create_match
	EntryFee   int64 `json:"entryFee,omitempty"`
	MaxPlayers int   `json:"maxPlayers,omitempty"`

	// match-scoped commands
	MatchID  string `json:"matchId,omitempty"`
	CardID   string `json:"cardId,omitempty"`
	TargetID string `json:"targetId,omitempty"`
}

// Inbound command types.
const (
	CmdLogin             = "login"
	CmdCreateMatch       = "create_match"
	CmdJoinMatch         = "join_match"
	CmdLeaveMatch        = "leave_match"
	CmdStartMatch        = "start_match"
	CmdSubmitCard        = "submit_card"
	CmdRequestSettlement = "request_settlement"
	CmdListMatches       = "list_matches"
	CmdReconnectMatch    = "reconnect_match"
)

// Outbound event types.
const (
	EventLoggedIn     = "logged_in"
	EventMatchState   = "match_state"
	EventPrivateState = "private_state"
	EventMatchList    = "match_list"
	EventSettlement   = "settlement"
	EventError        = "error"
)

// Event is the outbound JSON message to a client.
type Event struct {
	Type string `json:"type"`

	PlayerID    string `json:"playerId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`

	Match   *match.Snapshot         `json:"match,omitempty"`
	View    *match.PrivateView      `json:"view,omitempty"`
	Matches []match.Snapshot        `json:"matches,omitempty"`
	Result  *settlement.MatchResult `json:"result,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
