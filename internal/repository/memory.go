package repository

import (
	"context"
	"sync"
	"time"

	"metros-backend/internal/models"
)

// MemoryUserRepository keeps users in memory. It is the default backend and
// the source of truth when no durable store is configured.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
	order []string
}

// NewMemoryUserRepository creates an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]*models.User),
	}
}

// Create stores a new user.
func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *user
	r.users[user.ID] = &clone
	r.order = append(r.order, user.ID)
	return nil
}

// GetByID retrieves a user by ID.
func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

// GetByDeviceID retrieves a user by device identity.
func (r *MemoryUserRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if u := r.users[id]; u.DeviceID == deviceID {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

// List returns all users in insertion order.
func (r *MemoryUserRepository) List(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.User, 0, len(r.order))
	for _, id := range r.order {
		clone := *r.users[id]
		out = append(out, &clone)
	}
	return out, nil
}

// Update merges a partial update into the user and returns the result.
func (r *MemoryUserRepository) Update(ctx context.Context, id string, upd *models.UserUpdate) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	upd.Apply(user)
	user.LastSeen = time.Now()
	clone := *user
	return &clone, nil
}

// Touch refreshes last_seen and marks the user online.
func (r *MemoryUserRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.LastSeen = at
	user.Online = true
	return nil
}

// MarkStaleOffline marks users whose last_seen is older than the cutoff as
// offline and returns how many were affected.
func (r *MemoryUserRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, user := range r.users {
		if user.Online && user.LastSeen.Before(cutoff) {
			user.Online = false
			n++
		}
	}
	return n, nil
}
