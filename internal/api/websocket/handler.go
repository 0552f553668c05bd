package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/events"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// Handler upgrades requests onto the task-transition stream
type Handler struct {
	hub *Hub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWS handles WebSocket upgrade requests. A comma-separated `types`
// query parameter narrows the stream to those event types; without it the
// client receives every transition.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(h.hub, conn)
	for _, raw := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t := strings.TrimSpace(raw); t != "" {
			client.Subscribe(events.EventType(t))
		}
	}

	h.hub.Register(client)

	// Start pumps in goroutines
	go client.WritePump()
	go client.ReadPump()

	logger.Info().
		Str("client_id", client.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("stream client connected")
}
