package services

import (
	"context"
	"fmt"

	"metros-backend/internal/models"
	"metros-backend/internal/repository"
)

// RoomService handles station membership
type RoomService struct {
	userRepo repository.UserRepository
}

// NewRoomService creates a new room service
func NewRoomService(userRepo repository.UserRepository) *RoomService {
	return &RoomService{userRepo: userRepo}
}

func boolPtr(b bool) *bool { return &b }

// JoinStation marks the user as connected at the station and returns the
// online connected users there, the joining user included.
func (s *RoomService) JoinStation(ctx context.Context, station, userID string) ([]*models.User, error) {
	if station == "" {
		return nil, &ValidationError{Field: "station", Reason: "is required"}
	}
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "is required"}
	}

	_, err := s.userRepo.Update(ctx, userID, &models.UserUpdate{
		Station:     &station,
		IsConnected: boolPtr(true),
		IsWaiting:   boolPtr(false),
	})
	if err != nil {
		return nil, err
	}

	return s.ConnectedAt(ctx, station)
}

// ConnectedAt returns the online connected users at a station.
func (s *RoomService) ConnectedAt(ctx context.Context, station string) ([]*models.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	members := make([]*models.User, 0)
	for _, u := range users {
		if u.Online && u.IsConnected && u.Station == station {
			members = append(members, u)
		}
	}
	return members, nil
}
