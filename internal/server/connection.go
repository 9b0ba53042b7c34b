package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events queued per connection before the oldest unsent ones are
// dropped. A stalled client loses broadcasts; it never stalls the
// match actor that produced them.
const sendBuffer = 32

// Connection is one client's websocket session. The read loop routes
// inbound commands; outbound events go through a buffered channel
// drained by a single writer goroutine, so a slow client TCP
// connection cannot block the goroutine broadcasting match state.
type Connection struct {
	ws   *websocket.Conn
	out  chan Event
	done chan struct{}

	closeOnce sync.Once

	playerID    string
	displayName string
	autoFold    bool
	matchID     string

	srv    *Server
	logger *zap.Logger
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Connection{
		ws:     ws,
		out:    make(chan Event, sendBuffer),
		done:   make(chan struct{}),
		srv:    s,
		logger: s.logger,
	}
	go c.writeLoop()
	go c.readLoop()
}

func (c *Connection) readLoop() {
	defer c.close()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.sendError("BAD_REQUEST", "malformed command")
			continue
		}
		c.srv.route(c, cmd)
	}
}

// writeLoop is the only writer on the websocket; gorilla permits one
// concurrent writer per connection.
func (c *Connection) writeLoop() {
	for {
		select {
		case e := <-c.out:
			if err := c.ws.WriteJSON(e); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close tears down the connection: drop from the hub and flag the
// player disconnected on their match. Match status never changes on a
// transport disconnect. Safe to call from both loops.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.srv.hub.Drop(c)
		if c.matchID != "" && c.playerID != "" {
			if m, err := c.srv.registry.Get(c.matchID); err == nil {
				_ = m.SetConnected(c.playerID, false)
			}
		}
		_ = c.ws.Close()

		if c.playerID != "" {
			c.logger.Info("connection closed", zap.String("player", c.playerID))
		}
	})
}

// send enqueues an event for the writer goroutine. It never blocks:
// when the buffer is full the event is dropped and the client catches
// up from the next state broadcast.
func (c *Connection) send(e Event) {
	select {
	case c.out <- e:
	case <-c.done:
	default:
		c.logger.Debug("send buffer full, dropping event",
			zap.String("type", e.Type),
			zap.String("player", c.playerID),
		)
	}
}

func (c *Connection) sendError(code, message string) {
	c.send(Event{Type: EventError, Code: code, Message: message})
}
