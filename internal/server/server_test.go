package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lasthand-os/lasthand-server/internal/config"
	"github.com/lasthand-os/lasthand-server/internal/identity"
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/settlement"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	wallets := wallet.NewManager(time.Hour, logger)
	ledger := settlement.NewMemoryLedger()
	coord := settlement.NewCoordinator(ledger, wallets, nil, nil, logger)
	hub := NewHub(logger)

	registry := match.NewRegistry(match.Rules{
		MinPlayers:     2,
		MaxPlayers:     4,
		TotalRounds:    5,
		RoundTimeLimit: 10 * time.Second,
		MaxHealth:      100,
		HandSize:       5,
	}, wallets, hub, nil, logger)

	provider := identity.NewStaticProvider()
	provider.Register("token-alice", identity.Identity{PlayerID: "alice", DisplayName: "Alice"})
	provider.Register("token-bob", identity.Identity{PlayerID: "bob", DisplayName: "Bob"})

	s := New(config.WebSocketConfig{Path: "/ws"}, hub, registry, coord, provider, logger)
	ts := httptest.NewServer(http.HandlerFunc(s.serveWs))
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendCmd(t *testing.T, ws *websocket.Conn, cmd Command) {
	t.Helper()
	if err := ws.WriteJSON(cmd); err != nil {
		t.Fatalf("write %s: %v", cmd.Type, err)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e Event
	if err := ws.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return e
}

// readUntil drains events until one of the wanted type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, eventType string) Event {
	t.Helper()
	for i := 0; i < 10; i++ {
		e := readEvent(t, ws)
		if e.Type == eventType {
			return e
		}
	}
	t.Fatalf("never received %s", eventType)
	return Event{}
}

func login(t *testing.T, ws *websocket.Conn, token string) {
	t.Helper()
	sendCmd(t, ws, Command{Type: CmdLogin, Token: token})
	e := readEvent(t, ws)
	if e.Type != EventLoggedIn {
		t.Fatalf("expected logged_in, got %s (%s)", e.Type, e.Message)
	}
}

func TestLoginRejectsUnknownToken(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	sendCmd(t, ws, Command{Type: CmdLogin, Token: "nope"})
	e := readEvent(t, ws)
	if e.Type != EventError || e.Code != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED error, got %s/%s", e.Type, e.Code)
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)

	sendCmd(t, ws, Command{Type: CmdListMatches})
	e := readEvent(t, ws)
	if e.Type != EventError || e.Code != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED error, got %s/%s", e.Type, e.Code)
	}
}

func TestCreateMatchBroadcastsStateAndHand(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)
	login(t, ws, "token-alice")

	sendCmd(t, ws, Command{Type: CmdCreateMatch, EntryFee: 5, MaxPlayers: 4})

	state := readUntil(t, ws, EventMatchState)
	if state.Match == nil || state.Match.Status != "WAITING" {
		t.Fatalf("expected WAITING match state, got %+v", state.Match)
	}
	if len(state.Match.Players) != 1 || state.Match.Players[0].ID != "alice" {
		t.Fatalf("expected alice as sole player, got %+v", state.Match.Players)
	}
	if state.Match.EntryFee != 5 {
		t.Fatalf("expected entry fee 5, got %d", state.Match.EntryFee)
	}

	private := readUntil(t, ws, EventPrivateState)
	if private.View == nil || len(private.View.Hand) != 5 {
		t.Fatalf("expected a 5-card private hand, got %+v", private.View)
	}

	sendCmd(t, ws, Command{Type: CmdListMatches})
	list := readUntil(t, ws, EventMatchList)
	if len(list.Matches) != 1 {
		t.Fatalf("expected 1 lobby match, got %d", len(list.Matches))
	}
}

func TestCreateMatchRejectsNonPositiveFee(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)
	login(t, ws, "token-alice")

	for _, fee := range []int64{-100, 0} {
		sendCmd(t, ws, Command{Type: CmdCreateMatch, EntryFee: fee, MaxPlayers: 4})
		e := readEvent(t, ws)
		if e.Type != EventError || e.Code != "BAD_REQUEST" {
			t.Fatalf("fee %d: expected BAD_REQUEST error, got %s/%s", fee, e.Type, e.Code)
		}
	}

	// Nothing was created, so no wallet locked a bogus amount.
	sendCmd(t, ws, Command{Type: CmdListMatches})
	list := readUntil(t, ws, EventMatchList)
	if len(list.Matches) != 0 {
		t.Fatalf("expected empty lobby, got %d matches", len(list.Matches))
	}
}

func TestJoinStartAndSubmitOverWire(t *testing.T) {
	ts := newTestServer(t)

	alice := dial(t, ts)
	login(t, alice, "token-alice")
	bob := dial(t, ts)
	login(t, bob, "token-bob")

	sendCmd(t, alice, Command{Type: CmdCreateMatch, EntryFee: 5})
	state := readUntil(t, alice, EventMatchState)
	matchID := state.Match.ID

	sendCmd(t, bob, Command{Type: CmdJoinMatch, MatchID: matchID})
	joined := readUntil(t, bob, EventMatchState)
	if len(joined.Match.Players) != 2 {
		t.Fatalf("expected 2 players after join, got %d", len(joined.Match.Players))
	}

	// Only the host may start.
	sendCmd(t, bob, Command{Type: CmdStartMatch, MatchID: matchID})
	e := readUntil(t, bob, EventError)
	if e.Code != "NOT_AUTHORIZED" {
		t.Fatalf("expected NOT_AUTHORIZED, got %s", e.Code)
	}

	sendCmd(t, alice, Command{Type: CmdStartMatch, MatchID: matchID})
	for {
		state = readUntil(t, alice, EventMatchState)
		if state.Match.Status == "IN_PROGRESS" {
			break
		}
	}
	if state.Match.CurrentRound != 1 || state.Match.Phase != "SELECTING" {
		t.Fatalf("expected round 1 SELECTING, got round %d %s",
			state.Match.CurrentRound, state.Match.Phase)
	}

	// A card the player does not hold is rejected with a wire code.
	sendCmd(t, alice, Command{Type: CmdSubmitCard, MatchID: matchID, CardID: "bogus"})
	e = readUntil(t, alice, EventError)
	if e.Code != "CARD_NOT_IN_HAND" {
		t.Fatalf("expected CARD_NOT_IN_HAND, got %s", e.Code)
	}
}

func TestSettlementBeforeCompletionRejected(t *testing.T) {
	ts := newTestServer(t)
	ws := dial(t, ts)
	login(t, ws, "token-alice")

	sendCmd(t, ws, Command{Type: CmdCreateMatch, EntryFee: 5})
	state := readUntil(t, ws, EventMatchState)

	sendCmd(t, ws, Command{Type: CmdRequestSettlement, MatchID: state.Match.ID})
	e := readUntil(t, ws, EventError)
	if e.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE for live match, got %s", e.Code)
	}

	sendCmd(t, ws, Command{Type: CmdRequestSettlement, MatchID: "no-such-match"})
	e = readUntil(t, ws, EventError)
	if e.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND for unknown match, got %s", e.Code)
	}
}

func TestSendNeverBlocksOnBackpressure(t *testing.T) {
	c := &Connection{
		out:    make(chan Event, 2),
		done:   make(chan struct{}),
		logger: zaptest.NewLogger(t),
	}

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.send(Event{Type: EventMatchState})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("send blocked with a full buffer and no reader")
	}
	if len(c.out) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(c.out))
	}
}
