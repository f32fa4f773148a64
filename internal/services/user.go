package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"metros-backend/internal/models"
	"metros-backend/internal/repository"

	"github.com/google/uuid"
)

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UserService handles user-related business logic
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService creates a new user service
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// CreateUser registers a new user. The id and timestamps are assigned here.
// A known device_id refreshes the existing record instead of creating a
// duplicate, so a reconnecting client keeps its identity even when it lost
// its local state.
func (s *UserService) CreateUser(ctx context.Context, in *models.User) (*models.User, error) {
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "is required"}
	}

	if in.DeviceID != "" {
		existing, err := s.userRepo.GetByDeviceID(ctx, in.DeviceID)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("failed to look up device: %w", err)
		}
		if err == nil {
			online := true
			waiting := !in.IsConnected
			updated, err := s.userRepo.Update(ctx, existing.ID, &models.UserUpdate{
				Name:      &in.Name,
				City:      &in.City,
				Gender:    &in.Gender,
				Online:    &online,
				IsWaiting: &waiting,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to refresh device user: %w", err)
			}
			return updated, nil
		}
	}

	now := time.Now()
	user := *in
	user.ID = uuid.New().String()
	user.Online = true
	user.LastSeen = now
	user.CreatedAt = now
	if !user.IsConnected {
		user.IsWaiting = true
	}

	if err := s.userRepo.Create(ctx, &user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// ListUsers returns all users.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.userRepo.List(ctx)
}

// GetUser returns a user by id.
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UpdateUser merges a partial update into an existing user.
func (s *UserService) UpdateUser(ctx context.Context, id string, upd *models.UserUpdate) (*models.User, error) {
	return s.userRepo.Update(ctx, id, upd)
}

// Ping refreshes the user's presence.
func (s *UserService) Ping(ctx context.Context, id string) error {
	return s.userRepo.Touch(ctx, id, time.Now())
}

// SweepStale marks users unseen for longer than staleAfter as offline and
// returns how many were affected.
func (s *UserService) SweepStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	return s.userRepo.MarkStaleOffline(ctx, time.Now().Add(-staleAfter))
}
