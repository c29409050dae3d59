package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"botforge/apperr"
	"botforge/middleware"
	"botforge/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
	sendBuffer     = 256
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub fans events out to the open sockets of each user. It implements
// bots.EventPublisher.
type Hub struct {
	clients    map[*Client]struct{}
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
		logger:     logger.With("component", "ws_hub"),
	}
}

// Run processes disconnects until ctx is cancelled, then closes every
// remaining connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "user_id", client.userID, "clients", count)
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// SendToUser delivers msg to every socket of userID. Sockets whose buffer
// is full are dropped. When msg marks userID itself as deleted its sockets
// are closed after delivery.
func (h *Hub) SendToUser(userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal event", "type", msg.Type, "error", err)
		return
	}

	var stale []*Client
	sent := 0
	h.mu.RLock()
	for client := range h.clients {
		if client.userID != userID {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	if selfDeleted(userID, msg) {
		h.disconnectUser(userID)
	} else if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			h.removeLocked(client)
		}
		h.mu.Unlock()
		h.logger.Warn("dropped slow clients", "user_id", userID, "count", len(stale))
	}
	h.logger.Debug("event sent", "type", msg.Type, "user_id", userID, "connections", sent)
}

func selfDeleted(userID string, msg models.WSMessage) bool {
	if msg.Type != models.WSTypeUserUpdate {
		return false
	}
	p, ok := msg.Payload.(models.UserUpdatePayload)
	return ok && p.ID == userID && p.Flags&models.UserFlagDeleted != 0
}

// disconnectUser closes all connections of userID once their queued
// messages are flushed.
func (h *Hub) disconnectUser(userID string) {
	h.mu.Lock()
	n := 0
	for client := range h.clients {
		if client.userID == userID {
			h.removeLocked(client)
			n++
		}
	}
	h.mu.Unlock()
	if n > 0 {
		h.logger.Info("closed sessions of deleted user", "user_id", userID, "count", n)
	}
}

// HandleWebSocket upgrades a request authenticated by middleware.Auth.Socket.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.User(r)
	if err != nil {
		apperr.Write(w, apperr.Wrap(apperr.Unauthorized, "", err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: user.ID,
	}

	ready, err := json.Marshal(models.WSMessage{Type: models.WSTypeReady, Payload: user.ToResponse()})
	if err != nil {
		conn.Close()
		return
	}
	client.send <- ready

	// Registered before the pumps start so events published after the
	// upgrade are never missed.
	if !h.add(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return false
	default:
	}
	h.clients[client] = struct{}{}
	h.logger.Debug("client registered", "user_id", client.userID, "clients", len(h.clients))
	return true
}

// readPump only services control frames; clients do not send events.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("write failed", "user_id", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
