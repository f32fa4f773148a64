package handlers

import (
	"net/http"

	"metros-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// StationHandler handles station stats HTTP requests
type StationHandler struct {
	statsService *services.StatsService
}

// NewStationHandler creates a new station handler
func NewStationHandler(statsService *services.StatsService) *StationHandler {
	return &StationHandler{statsService: statsService}
}

// WaitingRoom handles GET /api/stations/waiting-room?city=
func (h *StationHandler) WaitingRoom(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if city == "" {
		respondError(w, "city is required", http.StatusBadRequest)
		return
	}

	stats, err := h.statsService.WaitingRoom(r.Context(), city)
	if err != nil {
		log.Error().Err(err).Str("city", city).Msg("Failed to compute waiting room stats")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
