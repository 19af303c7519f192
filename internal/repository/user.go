// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lucky-wheel/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrLoginTaken     = errors.New("login is already linked to another user")
	ErrSpinNotFound   = errors.New("spin not found")
	ErrNoTicket       = errors.New("no unused ticket")
	ErrNotCancellable = errors.New("spin cannot be cancelled")
)

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const userColumns = `telegram_id, username, login, intra_id, role, test_mode, last_spin, created_at, updated_at`

func scanUser(row scanner) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.TelegramID,
		&user.Username,
		&user.Login,
		&user.IntraID,
		&user.Role,
		&user.TestMode,
		&user.LastSpin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create creates a new user with the given Telegram ID and username.
func (r *UserRepository) Create(ctx context.Context, telegramID int64, username string) (*model.User, error) {
	const query = `
		INSERT INTO users (telegram_id, username, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, username))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by their Telegram ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, telegramID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByLogin retrieves the user linked to a campus login.
func (r *UserRepository) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE login = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by login: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user by Telegram ID, creating one if it doesn't exist.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, telegramID, username)
	if err != nil {
		// Another request may have created the user in the meantime
		user, err = r.GetByID(ctx, telegramID)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	return user, true, nil
}

// UpdateUsername updates a user's username.
func (r *UserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	const query = `
		UPDATE users
		SET username = $2, updated_at = NOW()
		WHERE telegram_id = $1
	`

	result, err := r.pool.Exec(ctx, query, telegramID, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Link binds a user to a campus login and id.
func (r *UserRepository) Link(ctx context.Context, telegramID int64, login string, intraID int64) (*model.User, error) {
	const query = `
		UPDATE users
		SET login = $2, intra_id = $3, updated_at = NOW()
		WHERE telegram_id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, telegramID, login, intraID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrLoginTaken
		}
		return nil, fmt.Errorf("failed to link user: %w", err)
	}
	return user, nil
}

// SetRole changes a user's role.
func (r *UserRepository) SetRole(ctx context.Context, telegramID int64, role string) error {
	return r.exec(ctx, "set role", `
		UPDATE users SET role = $2, updated_at = NOW() WHERE telegram_id = $1
	`, telegramID, role)
}

// SetTestMode toggles the gate bypass for a user.
func (r *UserRepository) SetTestMode(ctx context.Context, telegramID int64, enabled bool) error {
	return r.exec(ctx, "set test mode", `
		UPDATE users SET test_mode = $2, updated_at = NOW() WHERE telegram_id = $1
	`, telegramID, enabled)
}

// TryStartCooldown sets last_spin to now if the previous spin is at least
// cooldown old. It reports false when the user is still cooling down.
func (r *UserRepository) TryStartCooldown(ctx context.Context, telegramID int64, now time.Time, cooldown time.Duration) (bool, error) {
	const query = `
		UPDATE users
		SET last_spin = $2, updated_at = NOW()
		WHERE telegram_id = $1
		  AND (last_spin IS NULL OR last_spin <= $3)
	`

	result, err := r.pool.Exec(ctx, query, telegramID, now, now.Add(-cooldown))
	if err != nil {
		return false, fmt.Errorf("failed to start cooldown: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// ListStaff returns moderators and admins ordered by role then id.
func (r *UserRepository) ListStaff(ctx context.Context) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE role <> 'user'
		ORDER BY role, telegram_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
