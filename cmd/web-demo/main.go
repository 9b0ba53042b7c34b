// Standalone spectator demo: runs the match engine in-process with
// four bot players and streams live match snapshots to any connected
// browser. No database, no identity provider, endless matches.
package main

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lasthand-os/lasthand-server/internal/card"
	"github.com/lasthand-os/lasthand-server/internal/match"
	"github.com/lasthand-os/lasthand-server/internal/settlement"
	"github.com/lasthand-os/lasthand-server/internal/wallet"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // demo only
	},
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client

	mu   sync.RWMutex
	last []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			// Late joiners get the current state immediately.
			h.mu.RLock()
			last := h.last
			h.mu.RUnlock()
			if last != nil {
				c.send <- last
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			h.last = message
			h.mu.Unlock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

func (h *hub) emit(msgType string, data any) {
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		log.Printf("marshal %s: %v", msgType, err)
		return
	}
	h.broadcast <- payload
}

// spectatorSink forwards public match broadcasts to browsers. Private
// views go nowhere; the bots read their hands through the match API.
type spectatorSink struct {
	hub *hub
}

func (s spectatorSink) Public(_ string, snap match.Snapshot) {
	s.hub.emit("match_state", snap)
}

func (s spectatorSink) Private(_, _ string, _ match.PrivateView) {}

var botNames = []string{"Ace", "Bluff", "Cinder", "Drift"}

// playBot submits one action for the given bot: a random card from its
// hand, aimed at a random living opponent when the card needs a target.
func playBot(m *match.Match, botID string, rng *rand.Rand) {
	view, err := m.Hand(botID)
	if err != nil || len(view.Hand) == 0 {
		return
	}
	chosen := view.Hand[rng.Intn(len(view.Hand))]

	target := ""
	switch chosen.Effect {
	case card.EffectStrike, card.EffectSlash, card.EffectPierce,
		card.EffectFeint, card.EffectSteal, card.EffectMirror:
		var opponents []string
		for _, p := range m.Snapshot().Players {
			if p.ID != botID && !p.Eliminated {
				opponents = append(opponents, p.ID)
			}
		}
		if len(opponents) == 0 {
			return
		}
		target = opponents[rng.Intn(len(opponents))]
	}

	if err := m.Submit(botID, chosen.ID, target); err != nil {
		log.Printf("bot %s submit: %v", botID, err)
	}
}

// runMatches drives one bot match after another, forever.
func runMatches(registry *match.Registry, h *hub, settled <-chan settlement.MatchResult) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		m, err := registry.Create(10, len(botNames))
		if err != nil {
			log.Printf("create: %v", err)
			return
		}
		for _, name := range botNames {
			if err := m.Join(name, name, true); err != nil {
				log.Printf("bot %s join: %v", name, err)
			}
		}
		if err := m.Start(botNames[0]); err != nil {
			log.Printf("start: %v", err)
			return
		}

		for m.Status() == match.StatusInProgress {
			snap := m.Snapshot()
			if snap.Phase != "SELECTING" {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			for _, p := range snap.Players {
				if !p.Eliminated && !p.Submitted {
					playBot(m, p.ID, rng)
				}
			}
			// Suspense between rounds.
			time.Sleep(2 * time.Second)
		}

		select {
		case result := <-settled:
			h.emit("match_result", result)
		case <-time.After(5 * time.Second):
			log.Println("match ended without settlement")
		}
		time.Sleep(5 * time.Second)
	}
}

func serveWS(h *hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go func() {
		defer conn.Close()
		for message := range c.send {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				break
			}
		}
	}()
	go func() {
		defer func() { h.unregister <- c }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	h := newHub()
	go h.run()

	wallets := wallet.NewManager(time.Hour, logger)
	ledger := settlement.NewMemoryLedger()
	coord := settlement.NewCoordinator(ledger, wallets, nil, nil, logger)

	settled := make(chan settlement.MatchResult, 1)
	registry := match.NewRegistry(match.Rules{
		MinPlayers:     4,
		MaxPlayers:     4,
		TotalRounds:    5,
		RoundTimeLimit: 15 * time.Second,
		MaxHealth:      100,
		HandSize:       5,
	}, wallets, spectatorSink{hub: h}, func(c match.Completed) {
		result, settleErr := coord.Settle(context.Background(), c)
		if settleErr != nil {
			log.Printf("settlement: %v", settleErr)
			return
		}
		settled <- result
	}, logger)

	go runMatches(registry, h, settled)

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(h, w, r)
	})

	log.Println("Last Hand spectator demo on http://localhost:8080")
	if err := http.ListenAndServe(":8080", nil); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Last Hand - Spectator</title>
<style>
  body { font-family: monospace; background: #111; color: #eee; margin: 2em; }
  h1 { color: #e33; }
  .player { margin: 0.5em 0; }
  .bar { display: inline-block; height: 12px; background: #3a3; vertical-align: middle; }
  .dead { color: #666; text-decoration: line-through; }
  #result { color: #fd0; margin-top: 1em; }
</style>
</head>
<body>
<h1>LAST HAND</h1>
<div id="status">connecting...</div>
<div id="players"></div>
<div id="round"></div>
<div id="result"></div>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "match_state") render(msg.data);
  if (msg.type === "match_result") {
    document.getElementById("result").textContent =
      "WINNER: " + msg.data.winnerId + "  payout " + msg.data.winnerPayout;
  }
};
function render(s) {
  document.getElementById("status").textContent =
    s.status + "  round " + s.currentRound + "/" + s.totalRounds +
    "  pool " + s.prizePool;
  if (s.status === "IN_PROGRESS") document.getElementById("result").textContent = "";
  const rows = s.players.map(p => {
    const w = Math.round(p.health / p.maxHealth * 200);
    const cls = p.eliminated ? "player dead" : "player";
    return '<div class="' + cls + '">' + p.id.padEnd(8) +
      ' <span class="bar" style="width:' + w + 'px"></span> ' +
      p.health + "hp</div>";
  });
  document.getElementById("players").innerHTML = rows.join("");
  if (s.lastRound) {
    const cards = Object.entries(s.lastRound.cards || {})
      .map(([id, c]) => id + ":" + c).join("  ");
    document.getElementById("round").textContent =
      "last round " + s.lastRound.round + " - " + cards;
  }
}
</script>
</body>
</html>`
