package control

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/tc/internal/core"
	"github.com/randalmurphal/tc/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

// WSMessage is the client-to-server frame. /watch is read-only; the
// only accepted messages steer the subscription filter.
type WSMessage struct {
	Type    string   `json:"type"` // subscribe, ping
	Subject string   `json:"subject,omitempty"`
	Kinds   []string `json:"kinds,omitempty"`
}

// WSHandler fans bus events out to websocket watchers.
type WSHandler struct {
	upgrader    websocket.Upgrader
	bus         *events.Bus
	connections map[*websocket.Conn]*wsConnection
	mu          sync.RWMutex
	logger      *slog.Logger
}

// wsConnection tracks a single watcher.
type wsConnection struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects sub
	sub  *events.Subscription
	send chan []byte
	done chan struct{}
}

// NewWSHandler creates the /watch handler.
func NewWSHandler(bus *events.Bus, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Loopback only; the listener never leaves 127.0.0.1.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bus:         bus,
		connections: make(map[*websocket.Conn]*wsConnection),
		logger:      logger,
	}
}

// ServeHTTP upgrades the request and starts streaming every event until
// the client narrows the filter or disconnects.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConnection{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[conn] = c
	h.mu.Unlock()

	h.resubscribe(c, events.Filter{})

	go h.readPump(c)
	go h.writePump(c)
}

func (h *WSHandler) readPump(c *wsConnection) {
	defer h.closeConnection(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "error", err)
			}
			return
		}
		h.handleMessage(c, message)
	}
}

func (h *WSHandler) writePump(c *wsConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			// Flush anything already queued as separate frames.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) handleMessage(c *wsConnection, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		f := events.Filter{Subject: msg.Subject}
		for _, k := range msg.Kinds {
			f.Kinds = append(f.Kinds, core.EventKind(k))
		}
		h.resubscribe(c, f)
		h.sendJSON(c, map[string]any{"type": "subscribed", "subject": msg.Subject, "kinds": msg.Kinds})
	case "ping":
		h.sendJSON(c, map[string]any{"type": "pong"})
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// resubscribe swaps the connection's bus subscription for one with the
// given filter and restarts the forwarding goroutine.
func (h *WSHandler) resubscribe(c *wsConnection, f events.Filter) {
	if h.bus == nil {
		return
	}
	c.mu.Lock()
	if c.sub != nil {
		c.sub.Close()
	}
	sub := h.bus.Subscribe(f)
	c.sub = sub
	c.mu.Unlock()

	go h.forwardEvents(c, sub)
}

// forwardEvents pipes bus events to the websocket until the
// subscription is replaced or the connection goes away.
func (h *WSHandler) forwardEvents(c *wsConnection, sub *events.Subscription) {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			h.sendJSON(c, map[string]any{
				"type":    "event",
				"id":      ev.ID,
				"kind":    string(ev.Kind),
				"subject": ev.Subject,
				"payload": json.RawMessage(payloadOrNull(ev.Payload)),
				"time":    ev.CreatedAt,
			})
		}
	}
}

// payloadOrNull keeps the frame valid JSON when an event has no
// payload.
func payloadOrNull(p string) string {
	if p == "" {
		return "null"
	}
	return p
}

func (h *WSHandler) closeConnection(c *wsConnection) {
	h.mu.Lock()
	if _, exists := h.connections[c.conn]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c.conn)
	h.mu.Unlock()

	c.mu.Lock()
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	c.mu.Unlock()

	select {
	case <-c.done:
	default:
		close(c.done)
	}
	_ = c.conn.Close()
}

func (h *WSHandler) sendJSON(c *wsConnection, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal frame", "error", err)
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("websocket send buffer full, dropping message")
	}
}

func (h *WSHandler) sendError(c *wsConnection, message string) {
	h.sendJSON(c, map[string]any{"type": "error", "error": message})
}

// ConnectionCount returns the number of active watchers.
func (h *WSHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close drops every watcher, e.g. on engine shutdown.
func (h *WSHandler) Close() {
	h.mu.Lock()
	conns := make([]*wsConnection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.closeConnection(c)
	}
}
