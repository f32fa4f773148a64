package repository

import (
	"context"
	"errors"
	"time"

	"metros-backend/internal/models"
)

// ErrUserNotFound is returned when a user id or device id is unknown.
var ErrUserNotFound = errors.New("user not found")

// UserRepository is the interface for user storage backends.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, id string, upd *models.UserUpdate) (*models.User, error)
	Touch(ctx context.Context, id string, at time.Time) error
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error)
}
