package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"metros-backend/internal/models"
	"metros-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
	statsHub    *services.StatsHub
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService, statsHub *services.StatsHub) *UserHandler {
	return &UserHandler{
		userService: userService,
		statsHub:    statsHub,
	}
}

// ListUsers handles GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		respondServiceError(w, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

// CreateUser handles POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in models.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userService.CreateUser(ctx, &in)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("city", user.City).
		Msg("User created")

	h.broadcast(user.City)
	respondJSON(w, http.StatusOK, user)
}

// UpdateUser handles PUT /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	var upd models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userService.UpdateUser(ctx, userID, &upd)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update user")
		respondServiceError(w, err)
		return
	}

	h.broadcast(user.City)
	respondJSON(w, http.StatusOK, user)
}

// PingUser handles POST /api/users/{id}/ping
func (h *UserHandler) PingUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if err := h.userService.Ping(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to ping user")
		respondServiceError(w, err)
		return
	}

	user, err := h.userService.GetUser(ctx, userID)
	if err == nil {
		h.broadcast(user.City)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *UserHandler) broadcast(city string) {
	if h.statsHub == nil || city == "" {
		return
	}
	go h.statsHub.BroadcastCity(context.Background(), city)
}
