package handlers

import (
	"net/http"

	"metros-backend/internal/services"
	"metros-backend/internal/stations"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler serves the live station stats feed
type WebSocketHandler struct {
	hub *services.StatsHub
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.StatsHub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket handles GET /ws?city=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if !stations.KnownCity(city) {
		respondError(w, "unknown city", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Subscribe(city, conn)
	defer h.hub.Unsubscribe(city, conn)

	if err := h.hub.SendCurrent(r.Context(), city, conn); err != nil {
		log.Error().Err(err).Str("city", city).Msg("Failed to send initial stats")
		return
	}

	log.Info().Str("city", city).Msg("Stats feed connection established")

	// The feed is push-only; drain the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("city", city).Msg("WebSocket error")
			}
			return
		}
	}
}
