package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"metros-backend/internal/models"
	"metros-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// RoomHandler handles station membership HTTP requests
type RoomHandler struct {
	roomService *services.RoomService
	userService *services.UserService
	statsHub    *services.StatsHub
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomService *services.RoomService, userService *services.UserService, statsHub *services.StatsHub) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		userService: userService,
		statsHub:    statsHub,
	}
}

// JoinStation handles POST /api/rooms/join-station
func (h *RoomHandler) JoinStation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.JoinStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	users, err := h.roomService.JoinStation(ctx, req.Station, req.UserID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", req.UserID).
			Str("station", req.Station).
			Msg("Failed to join station")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", req.UserID).
		Str("station", req.Station).
		Int("members", len(users)).
		Msg("User joined station")

	if h.statsHub != nil {
		if user, err := h.userService.GetUser(ctx, req.UserID); err == nil && user.City != "" {
			go h.statsHub.BroadcastCity(context.Background(), user.City)
		}
	}

	respondJSON(w, http.StatusOK, models.JoinStationResponse{Success: true, Users: users})
}
