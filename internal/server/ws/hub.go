// Package ws bridges the cross-process signal bus to live websocket
// viewers. Each connection is scoped to one user; flush payloads published
// for that user are fanned out to all of their connections.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// Watcher is the engine surface the hub drives: viewers subscribing and
// the last viewer of a user going away.
type Watcher interface {
	OnUserSubscribe(ctx context.Context, userID string) error
	OnUserUnsubscribe(userID string)
}

// client represents a single WebSocket connection bound to a user.
type client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
}

// subscribeMsg is the JSON message a client sends to start watching.
// Format: {"payload": {"userId": "..."}}.
type subscribeMsg struct {
	Payload struct {
		UserID string `json:"userId"`
	} `json:"payload"`
}

// Hub manages connected websocket clients and forwards per-user payloads
// from the signal bus to that user's connections.
type Hub struct {
	watcher    Watcher
	bus        domain.SignalBus
	route      string
	logger     *slog.Logger
	register   chan *client
	unregister chan *client
	broadcast  chan userMsg

	mu      sync.RWMutex
	clients map[*client]bool
	byUser  map[string]map[*client]bool
}

// userMsg carries a payload together with the user it is addressed to.
type userMsg struct {
	userID string
	data   []byte
}

// NewHub creates a hub forwarding payloads of the given route.
func NewHub(watcher Watcher, bus domain.SignalBus, route string, logger *slog.Logger) *Hub {
	return &Hub{
		watcher:    watcher,
		bus:        bus,
		route:      route,
		logger:     logger.With(slog.String("component", "ws_hub")),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan userMsg, 256),
		clients:    make(map[*client]bool),
		byUser:     make(map[string]map[*client]bool),
	}
}

// Run starts the hub's main event loop. It should be called in a
// goroutine; it exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.subscribeRoute(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.byUser = make(map[string]map[*client]bool)
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if h.byUser[c.userID] == nil {
				h.byUser[c.userID] = make(map[*client]bool)
			}
			h.byUser[c.userID][c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.String("client_id", c.id),
				slog.String("user_id", c.userID),
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			var lastForUser bool
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				if conns := h.byUser[c.userID]; conns != nil {
					delete(conns, c)
					if len(conns) == 0 {
						delete(h.byUser, c.userID)
						lastForUser = true
					}
				}
			}
			h.mu.Unlock()
			if lastForUser {
				h.watcher.OnUserUnsubscribe(c.userID)
			}
			h.logger.Info("ws: client disconnected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.byUser[msg.userID] {
				select {
				case c.send <- msg.data:
				default:
					// Client's send buffer is full; drop the message.
					h.logger.Warn("ws: dropping message for slow client",
						slog.String("client_id", c.id),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeRoute pattern-subscribes to every per-user channel of the
// hub's route and forwards received payloads to the broadcast loop.
func (h *Hub) subscribeRoute(ctx context.Context) {
	pattern := h.route + ":*"
	msgCh, err := h.bus.Subscribe(ctx, pattern)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to route",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to route", slog.String("pattern", pattern))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: route subscription closed",
					slog.String("pattern", pattern),
				)
				return
			}
			h.broadcast <- userMsg{
				userID: strings.TrimPrefix(msg.Channel, h.route+":"),
				data:   msg.Payload,
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and
// registers the client with the hub.
// GET /ws?user_id=<id>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	h.register <- c

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump(r.Context())
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection. A subscribe
// message starts the reconciliation watch for the client's user.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr != nil || sub.Payload.UserID == "" {
			continue
		}
		if sub.Payload.UserID != c.userID {
			c.hub.logger.Warn("ws: subscribe for foreign user rejected",
				slog.String("client_user", c.userID),
			)
			continue
		}
		if err := c.hub.watcher.OnUserSubscribe(ctx, c.userID); err != nil {
			c.hub.logger.Error("ws: subscribe failed",
				slog.String("user_id", c.userID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection,
// interleaving periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
