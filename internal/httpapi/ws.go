package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/skinvault/escrow/internal/platform/apierrors"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin checking is the deployment's reverse proxy's job; the
	// session token is this endpoint's actual authentication.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type ackMessage struct {
	Ack            bool  `json:"ack"`
	NotificationID int64 `json:"notification_id"`
}

// handleWebSocket implements the /ws upgrade (spec §6): the connection is
// authenticated by the same session token as the REST endpoints, pending
// notifications are drained oldest-first on connect, and the hub
// registers the live connection for subsequent pushes. Client frames are
// interpreted only as acks.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, s.log, apierrors.ErrUnauthorized, false, 0)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("httpapi: websocket upgrade failed")
		return
	}

	pending, err := s.notifier.DrainPending(r.Context(), session.SteamID)
	if err != nil {
		s.log.WithError(err).Warn("httpapi: failed to drain pending notifications on connect")
	}
	for _, n := range pending {
		payload, err := json.Marshal(n)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			return
		}
	}

	s.hub.Register(session.SteamID, conn)
	go s.readAcks(conn, session.SteamID)
}

// readAcks consumes client frames on a registered connection; the hub
// owns the connection's lifecycle (ping/pong, close), so this only
// interprets application-level ack messages, matching the read-side
// split in 0xtitan6-polymarket-mm's stream handler between transport
// keepalive and message semantics.
func (s *Server) readAcks(conn *websocket.Conn, steamID string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ackMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Ack && msg.NotificationID != 0 {
			if err := s.notifier.MarkRead(context.Background(), msg.NotificationID); err != nil {
				s.log.WithFields(map[string]interface{}{"steam_id": steamID}).WithError(err).Warn("httpapi: failed to mark notification read")
			}
		}
	}
}
