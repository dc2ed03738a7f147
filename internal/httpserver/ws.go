// internal/httpserver/ws.go
//
// Live event stream for one game.
//
//   - GET /game/{id}/ws upgrades to a WebSocket.
//   - The first frame is a "snapshot" event; every engine event follows as
//     one JSON text frame, in engine order.
//   - Inbound frames: {"type":"select","position":n} and {"type":"reset"}.
//   - A client that cannot keep up is disconnected rather than slowing the
//     engine down.

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/robalobadob/concentration/internal/game"
	"github.com/robalobadob/concentration/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Outbound frames buffered per client.
	sendBuffer = 256
)

// wsCommand is an inbound frame.
type wsCommand struct {
	Type     string `json:"type" validate:"oneof=select reset"`
	Position *int   `json:"position" validate:"omitempty,gte=0"`
}

type wsClient struct {
	conn *websocket.Conn
	sess *store.Session
	send chan []byte
	done chan struct{}
	once sync.Once
	log  zerolog.Logger
}

func (s *Server) upgrader() websocket.Upgrader {
	origin := s.cfg.ClientOrigin
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == origin
		},
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	c := &wsClient{
		conn: conn,
		sess: sess,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  s.log.With().Str("gameId", sess.ID).Logger(),
	}
	unsubscribe := sess.Engine.Watch(c.enqueue)
	c.log.Debug().Msg("websocket attached")

	go c.writePump()
	s.readPump(c)

	unsubscribe()
	c.close()
	c.log.Debug().Msg("websocket detached")
}

// enqueue is the engine listener. It never blocks.
func (c *wsClient) enqueue(ev game.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", string(ev.Type)).Msg("encode event")
		return
	}
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.log.Warn().Msg("websocket client too slow, disconnecting")
		c.close()
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump applies inbound commands until the peer goes away.
func (s *Server) readPump(c *wsClient) {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		select {
		case <-c.done:
			return
		default:
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil || s.validate.Struct(cmd) != nil ||
			(cmd.Type == "select" && cmd.Position == nil) {
			c.log.Debug().Bytes("frame", message).Msg("ignored websocket frame")
			continue
		}
		c.sess.Touch(s.sched.Now())
		switch cmd.Type {
		case "select":
			c.sess.Engine.Select(*cmd.Position)
		case "reset":
			c.sess.Engine.Reset()
		}
	}
}

// writePump drains send to the socket and keeps the connection alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
