package repository

import (
	"context"
	"fmt"
	"time"

	"metros-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, device_id, name, city, gender, color, station, wagon,
	online, is_waiting, is_connected, status, show_timer, timer_seconds,
	timer_started_at, last_seen, created_at`

// PostgresUserRepository handles database operations for users
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgreSQL user repository
func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.DeviceID, user.Name, user.City, user.Gender, user.Color,
		user.Station, user.Wagon, user.Online, user.IsWaiting, user.IsConnected,
		user.Status, user.ShowTimer, user.TimerSeconds, user.TimerStartedAt,
		user.LastSeen, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// GetByDeviceID retrieves a user by device identity
func (r *PostgresUserRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE device_id = $1 ORDER BY created_at LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, deviceID))
}

// List returns all users
func (r *PostgresUserRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.DeviceID, &u.Name, &u.City, &u.Gender, &u.Color,
			&u.Station, &u.Wagon, &u.Online, &u.IsWaiting, &u.IsConnected,
			&u.Status, &u.ShowTimer, &u.TimerSeconds, &u.TimerStartedAt,
			&u.LastSeen, &u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// Update merges a partial update into the user row and returns the result.
// Read-merge-write inside a transaction keeps the merge logic in one place.
func (r *PostgresUserRepository) Update(ctx context.Context, id string, upd *models.UserUpdate) (*models.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := r.scanOne(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	upd.Apply(user)
	user.LastSeen = time.Now()

	_, err = tx.Exec(ctx, `
		UPDATE users SET device_id = $2, name = $3, city = $4, gender = $5,
			color = $6, station = $7, wagon = $8, online = $9, is_waiting = $10,
			is_connected = $11, status = $12, show_timer = $13,
			timer_seconds = $14, timer_started_at = $15, last_seen = $16
		WHERE id = $1`,
		user.ID, user.DeviceID, user.Name, user.City, user.Gender, user.Color,
		user.Station, user.Wagon, user.Online, user.IsWaiting, user.IsConnected,
		user.Status, user.ShowTimer, user.TimerSeconds, user.TimerStartedAt,
		user.LastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return user, nil
}

// Touch refreshes last_seen and marks the user online
func (r *PostgresUserRepository) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_seen = $2, online = TRUE WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// MarkStaleOffline marks users unseen since the cutoff as offline
func (r *PostgresUserRepository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE users SET online = FALSE WHERE online AND last_seen < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale users offline: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresUserRepository) scanOne(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.DeviceID, &u.Name, &u.City, &u.Gender, &u.Color,
		&u.Station, &u.Wagon, &u.Online, &u.IsWaiting, &u.IsConnected,
		&u.Status, &u.ShowTimer, &u.TimerSeconds, &u.TimerStartedAt,
		&u.LastSeen, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
