package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The CORS middleware guards the HTTP surface; the websocket handshake
	// accepts any origin the middleware let through.
	CheckOrigin: func(*http.Request) bool { return true },
}

// clientCommand is an inbound websocket message from a client session.
type clientCommand struct {
	Type   string `json:"type"` // sendMessage | markViewed
	ChatID string `json:"chatId"`
	Body   string `json:"body,omitempty"`
}

// WebSocket upgrades the connection, registers it with the hub and consumes
// client commands until disconnect.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := h.hub.Register(conn)
	defer h.hub.Unregister(sess.ID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("session", sess.ID), zap.Error(err))
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "sendMessage":
			if _, err := h.gateway.Send(r.Context(), cmd.ChatID, cmd.Body); err != nil {
				h.logger.Warn("websocket send rejected",
					zap.String("session", sess.ID),
					zap.String("chat", cmd.ChatID),
					zap.Error(err))
			}
		case "markViewed":
			h.pipeline.MarkViewed(cmd.ChatID)
		}
	}
}
