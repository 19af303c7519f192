package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lucky-wheel/internal/model"
)

const ticketColumns = `id, user_id, wheel_slug, granted_by, created_at, used_at`

func scanTicket(row scanner) (*model.Ticket, error) {
	var t model.Ticket
	if err := row.Scan(&t.ID, &t.UserID, &t.WheelSlug, &t.GrantedBy, &t.CreatedAt, &t.UsedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// TicketRepository persists single-use spin tickets.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository creates a new TicketRepository instance.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// Create grants a ticket for a wheel. grantedBy is nil for tickets won on the wheel.
func (r *TicketRepository) Create(ctx context.Context, userID int64, wheelSlug string, grantedBy *int64) (*model.Ticket, error) {
	const query = `
		INSERT INTO tickets (user_id, wheel_slug, granted_by, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + ticketColumns

	t, err := scanTicket(r.pool.QueryRow(ctx, query, userID, wheelSlug, grantedBy))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return t, nil
}

// ConsumeOldest marks the user's oldest unused ticket for a wheel as used.
// Concurrent callers never consume the same ticket. Returns ErrNoTicket when none is left.
func (r *TicketRepository) ConsumeOldest(ctx context.Context, userID int64, wheelSlug string) (*model.Ticket, error) {
	const query = `
		UPDATE tickets
		SET used_at = NOW()
		WHERE id = (
			SELECT id FROM tickets
			WHERE user_id = $1 AND wheel_slug = $2 AND used_at IS NULL
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + ticketColumns

	t, err := scanTicket(r.pool.QueryRow(ctx, query, userID, wheelSlug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTicket
		}
		return nil, fmt.Errorf("failed to consume ticket: %w", err)
	}
	return t, nil
}

// DeleteUnused removes a ticket if it belongs to userID and has not been spent.
func (r *TicketRepository) DeleteUnused(ctx context.Context, ticketID, userID int64) (bool, error) {
	const query = `DELETE FROM tickets WHERE id = $1 AND user_id = $2 AND used_at IS NULL`

	result, err := r.pool.Exec(ctx, query, ticketID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete ticket: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// CountUnused returns how many unused tickets a user holds for a wheel.
func (r *TicketRepository) CountUnused(ctx context.Context, userID int64, wheelSlug string) (int64, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE user_id = $1 AND wheel_slug = $2 AND used_at IS NULL`

	var n int64
	if err := r.pool.QueryRow(ctx, query, userID, wheelSlug).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return n, nil
}

// Summary counts unused tickets per wheel. A zero userID summarises every user.
func (r *TicketRepository) Summary(ctx context.Context, userID int64) ([]model.TicketCount, error) {
	const query = `
		SELECT wheel_slug, COUNT(*)
		FROM tickets
		WHERE used_at IS NULL AND ($1::bigint = 0 OR user_id = $1)
		GROUP BY wheel_slug
		ORDER BY wheel_slug
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise tickets: %w", err)
	}
	defer rows.Close()

	var counts []model.TicketCount
	for rows.Next() {
		var c model.TicketCount
		if err := rows.Scan(&c.WheelSlug, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan ticket count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket counts: %w", err)
	}
	return counts, nil
}

// Recent returns the latest grants, newest first.
func (r *TicketRepository) Recent(ctx context.Context, limit int) ([]*model.Ticket, error) {
	const query = `
		SELECT ` + ticketColumns + `
		FROM tickets
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}
