// Package notifier implements the dual-path notification fabric (C10):
// every notification is first persisted through storage.NotificationStore,
// then opportunistically pushed to a live WebSocket connection if the
// recipient has one. A connection that isn't there yet (or drops) never
// loses a message — the next ListPending drain on reconnect delivers it
// oldest first.
//
// The hub is grounded in 0xtitan6-polymarket-mm's internal/api/stream.go
// Hub/Client, adapted from a single broadcast-to-everyone channel to a
// per-recipient registry, since notifications here are addressed to one
// user rather than broadcast to a dashboard audience.
package notifier

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skinvault/escrow/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
	clientSendBuf  = 32
)

// Hub tracks live WebSocket connections by recipient Steam ID and
// fans out pushes addressed to that recipient.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool
	log     *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("notifier-hub")
	}
	return &Hub{clients: make(map[string]map[*client]bool), log: log}
}

type client struct {
	hub         *Hub
	recipientID string
	conn        *websocket.Conn
	send        chan []byte
}

// Register upgrades conn into a tracked client for recipientID and starts
// its read/write pumps. The caller is responsible for performing the
// HTTP->WebSocket upgrade and any authentication before calling this.
func (h *Hub) Register(recipientID string, conn *websocket.Conn) {
	c := &client{hub: h, recipientID: recipientID, conn: conn, send: make(chan []byte, clientSendBuf)}

	h.mu.Lock()
	if h.clients[recipientID] == nil {
		h.clients[recipientID] = make(map[*client]bool)
	}
	h.clients[recipientID][c] = true
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.recipientID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.recipientID)
		}
	}
}

// Push best-effort delivers payload to every live connection for
// recipientID. A slow or dead client is dropped rather than blocking
// other recipients (spec §4.7: push is best-effort, the durable queue is
// the source of truth).
func (h *Hub) Push(recipientID string, payload []byte) (delivered bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.clients[recipientID]
	if !ok {
		return false
	}
	for c := range set {
		select {
		case c.send <- payload:
			delivered = true
		default:
			h.log.WithFields(map[string]interface{}{"recipient_id": recipientID}).Warn("notifier: client send buffer full, dropping push")
		}
	}
	return delivered
}

// Connected reports whether recipientID currently has a live connection.
func (h *Hub) Connected(recipientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[recipientID]
	return ok
}

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

// readPump only exists to detect disconnects and consume pong frames;
// the notification channel is one-directional (server -> client).
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
