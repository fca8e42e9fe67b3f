package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize         = 256
	inboxSize              = 64
	defaultMaxMessageBytes = 1 << 20
)

var (
	// ErrSendBufferFull is returned when a connection cannot keep up with
	// its outbound events. The connection is closed.
	ErrSendBufferFull = errors.New("send buffer full")

	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// wsConn is one WebSocket client. It implements session.Conn; outbound
// events are queued and written by writePump in order. Inbound frames are
// queued on inbox and handled one at a time by dispatchPump.
type wsConn struct {
	id    string
	conn  *websocket.Conn
	send  chan []byte
	inbox chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:    uuid.New().String(),
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		inbox: make(chan []byte, inboxSize),
		done:  make(chan struct{}),
	}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Send(env deck.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", env.Event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// close stops the write pump, which sends a close frame and closes the
// socket. Safe to call more than once.
func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsConn) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logEvent("ws_upgrade_failed", map[string]interface{}{
			"origin": r.Header.Get("Origin"),
			"error":  err.Error(),
		})
		return
	}

	c := newWSConn(conn)
	if !s.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.logEvent("connection_opened", map[string]interface{}{
		"conn_id":     c.id,
		"remote_addr": r.RemoteAddr,
	})

	go s.writePump(c)
	go s.dispatchPump(c)
	go s.readPump(c)
}

// readPump reads frames until the socket fails and queues them for
// dispatchPump in arrival order.
func (s *Server) readPump(c *wsConn) {
	defer func() {
		close(c.inbox)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(s.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logEvent("connection_error", map[string]interface{}{
					"conn_id": c.id,
					"error":   err.Error(),
				})
			}
			return
		}

		if s.isClosing() {
			return
		}
		c.inbox <- message
	}
}

// dispatchPump handles one connection's frames in the order they were sent,
// independently of other connections. It uses the server context and drains
// the queue after a disconnect, so accepted frames still complete and
// broadcast. The connection leaves its channels once the queue is empty.
func (s *Server) dispatchPump(c *wsConn) {
	defer func() {
		s.handlers.Disconnect(c)
		s.unregister(c)
	}()

	for raw := range c.inbox {
		s.handlers.Dispatch(s.ctx, c, raw)
	}
}

// writePump writes queued events one frame each and keeps the connection
// alive with pings.
func (s *Server) writePump(c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// originAllowed reports whether a browser origin may open a WebSocket. An
// empty list or "*" allows any origin, and non-browser clients that send no
// Origin header are always allowed.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(strings.TrimSuffix(a, "/"), origin) {
			return true
		}
	}
	return false
}
