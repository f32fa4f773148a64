package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"metros-backend/internal/models"

	"github.com/redis/go-redis/v9"
)

func userKey(id string) string {
	return "user:" + id
}

func deviceKey(deviceID string) string {
	return "device:" + deviceID
}

const userIndexKey = "users"

// RedisUserRepository persists users in Redis: one JSON value per user, a
// list of ids preserving insertion order, and a device-id index.
type RedisUserRepository struct {
	client redis.Cmdable
}

// NewRedisUserRepository creates a Redis-backed user repository.
func NewRedisUserRepository(client redis.Cmdable) *RedisUserRepository {
	return &RedisUserRepository{client: client}
}

// Create stores a new user.
func (r *RedisUserRepository) Create(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, userKey(user.ID), data, 0)
	pipe.RPush(ctx, userIndexKey, user.ID)
	if user.DeviceID != "" {
		pipe.Set(ctx, deviceKey(user.DeviceID), user.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *RedisUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	data, err := r.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return &u, nil
}

// GetByDeviceID retrieves a user by device identity.
func (r *RedisUserRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.User, error) {
	id, err := r.client.Get(ctx, deviceKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve device id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// List returns all users in insertion order.
func (r *RedisUserRepository) List(ctx context.Context) ([]*models.User, error) {
	ids, err := r.client.LRange(ctx, userIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetByID(ctx, id)
		if err != nil {
			if err == ErrUserNotFound {
				continue
			}
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// Update merges a partial update into the stored user and returns the result.
func (r *RedisUserRepository) Update(ctx context.Context, id string, upd *models.UserUpdate) (*models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldDevice := user.DeviceID
	upd.Apply(user)
	user.LastSeen = time.Now()

	if err := r.save(ctx, user, oldDevice); err != nil {
		return nil, err
	}
	return user, nil
}

// Touch refreshes last_seen and marks the user online.
func (r *RedisUserRepository) Touch(ctx context.Context, id string, at time.Time) error {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	user.LastSeen = at
	user.Online = true
	return r.save(ctx, user, user.DeviceID)
}

// MarkStaleOffline marks users unseen since the cutoff as offline.
func (r *RedisUserRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	users, err := r.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, user := range users {
		if user.Online && user.LastSeen.Before(cutoff) {
			user.Online = false
			if err := r.save(ctx, user, user.DeviceID); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func (r *RedisUserRepository) save(ctx context.Context, user *models.User, oldDevice string) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, userKey(user.ID), data, 0)
	if oldDevice != "" && oldDevice != user.DeviceID {
		pipe.Del(ctx, deviceKey(oldDevice))
	}
	if user.DeviceID != "" {
		pipe.Set(ctx, deviceKey(user.DeviceID), user.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
